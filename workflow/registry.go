package workflow

import "github.com/dshills/branchchat/tot/model"

// Models selects the chat model behind each workflow role. Nil fields fall
// back to Default.
type Models struct {
	Default     model.ChatModel
	ThinkLonger model.ChatModel
	Summary     model.ChatModel
	Research    model.ChatModel
}

func (m Models) or(v model.ChatModel) model.ChatModel {
	if v != nil {
		return v
	}
	return m.Default
}

// NewStandardRegistry registers every linear workflow plus tree, the
// tree-of-thoughts workflow, when tree is non-nil.
func NewStandardRegistry(models Models, tree *TreeOfThoughts) *Registry {
	r := NewRegistry()
	r.Register(ModeDefault, NewDefault(models.Default))
	r.Register(ModeChainOfThought, NewChainOfThought(models.Default))
	r.Register(ModeThinkLonger, NewThinkLonger(models.or(models.ThinkLonger)))
	r.Register(ModeSummary, NewSummary(models.or(models.Summary)))
	r.Register(ModeDeepResearch, NewDeepResearch(models.or(models.Research)))
	if tree != nil {
		r.Register(ModeTreeOfThoughts, tree)
	}
	return r
}
