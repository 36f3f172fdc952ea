package tot

import (
	"context"
	"strings"

	"github.com/dshills/branchchat/tot/emit"
)

// NoSolutionAnswer is returned when the search ends with an empty frontier.
const NoSolutionAnswer = "No solution found."

// tryFinalize asks whether the best path of frontier already answers the
// goal. It returns "" to continue searching. An empty frontier is never
// finalized and costs no oracle call.
func (s *search) tryFinalize(ctx context.Context, depth int, frontier []Node) (string, error) {
	if len(frontier) == 0 {
		return "", nil
	}

	var fin Finalization
	err := s.call(RoleFinalizeCheck, depth, func() (err error) {
		fin, err = s.engine.eval.FinalizeCheck(ctx, s.goal, frontier[0].Path)
		return err
	})
	if err != nil {
		return "", err
	}
	s.emit(depth, emit.MsgFinalizeCheck, map[string]interface{}{
		"finalized": fin.Finalized,
		"reason":    fin.Reason,
	})
	if !fin.Finalized {
		return "", nil
	}

	answer, err := s.synthesizeFrontier(ctx, depth, frontier)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// synthesize writes the final answer from the best node of frontier.
func (s *search) synthesize(ctx context.Context, depth int, frontier []Node) (string, error) {
	if len(frontier) == 0 {
		return NoSolutionAnswer, nil
	}

	var answer string
	err := s.call(RoleSynthesizer, depth, func() (err error) {
		answer, err = s.engine.synth.Synthesize(ctx, s.goal, frontier[0].Path)
		return err
	})
	return answer, err
}

// synthesizeFrontier gives a FrontierSynthesizer every frontier path, best
// first, and falls back to the best path otherwise.
func (s *search) synthesizeFrontier(ctx context.Context, depth int, frontier []Node) (string, error) {
	fs, ok := s.engine.synth.(FrontierSynthesizer)
	if !ok {
		return s.synthesize(ctx, depth, frontier)
	}

	paths := make([][]string, len(frontier))
	for i, n := range frontier {
		paths[i] = clonePath(n.Path)
	}

	var answer string
	err := s.call(RoleSynthesizer, depth, func() (err error) {
		answer, err = fs.SynthesizeFrontier(ctx, s.goal, paths)
		return err
	})
	return answer, err
}
