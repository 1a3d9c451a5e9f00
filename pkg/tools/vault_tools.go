package tools

import (
	"github.com/vaultclaw/vaultclaw/pkg/undo"
	"github.com/vaultclaw/vaultclaw/pkg/vault"
)

// RegisterVaultTools registers the canonical vault tool set on the registry.
// The undo log is passed explicitly: every mutating tool records its inverse
// there, nothing reaches for ambient state.
func RegisterVaultTools(r *Registry, store vault.Store, log *undo.Log, extension string) error {
	if extension == "" {
		extension = ".md"
	}
	deps := vaultDeps{store: store, log: log, ext: extension}

	all := []Tool{
		&SearchVaultTool{deps},
		&ReadNoteTool{deps},
		&CreateNoteTool{deps},
		&AppendToNoteTool{deps},
		&ListFolderTool{deps},
		&RenameFileTool{deps},
		&RenameFolderTool{deps},
		&MoveFileTool{deps},
		&DeleteNoteTool{deps},
		&CreateFolderTool{deps},
		&DeleteFolderTool{deps},
		&GrepVaultTool{deps},
		&EditSectionTool{deps},
		&ReplaceTextTool{deps},
	}
	for _, t := range all {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
