package runtime

import (
	"fmt"

	"github.com/vinculobrasil/flowbot/pkg/domain"
)

// validateExecution checks that a node carries the configuration its handler
// cannot run without. Nodes of unknown kind pass; dispatch reports them.
func (e *Engine) validateExecution(node *domain.Node) error {
	if node == nil {
		return fmt.Errorf("cannot execute nil node")
	}

	switch cfg := node.Config.(type) {
	case *domain.MenuConfig:
		if len(cfg.Options) == 0 {
			return fmt.Errorf("menu node %s has no options", node.ID)
		}
	case *domain.WebhookConfig:
		if cfg.URL == "" {
			return fmt.Errorf("webhook node %s has no url", node.ID)
		}
	case *domain.VariableConfig:
		if cfg.Name == "" {
			return fmt.Errorf("variable node %s has no name", node.ID)
		}
	case *domain.TagConfig:
		if cfg.Tag == "" {
			return fmt.Errorf("tag node %s has no tag", node.ID)
		}
	}
	return nil
}
