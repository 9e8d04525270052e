package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/toolweave/internal/logger"
	apperrors "github.com/alexisbeaulieu97/toolweave/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("param_name", func(fl validator.FieldLevel) bool {
			return paramNamePattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Repository is a read-only catalog backed by a directory of YAML toolspecs,
// one file per tool named <tool>.yaml or <tool>.yml.
type Repository struct {
	dir   string
	tools map[string]*Tool
}

var _ Catalog = (*Repository)(nil)

// NewRepository loads and validates every toolspec in dir.
func NewRepository(dir string, log *logger.Logger) (*Repository, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.NewCatalogError("", "", fmt.Sprintf("read toolspec directory %s", dir), err)
	}

	repo := &Repository{dir: dir, tools: make(map[string]*Tool)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		tool, err := LoadToolspec(path)
		if err != nil {
			return nil, err
		}
		if existing, dup := repo.tools[tool.Name]; dup {
			return nil, apperrors.NewCatalogError(tool.Name, "",
				fmt.Sprintf("declared twice (also version %q)", existing.Version), nil)
		}
		repo.tools[tool.Name] = tool
		log.WithFields(map[string]any{"tool": tool.Name, "operations": len(tool.Operations)}).Debug("toolspec loaded")
	}

	log.WithFields(map[string]any{"dir": dir, "tools": len(repo.tools)}).Info("toolspec repository ready")
	return repo, nil
}

// Tool implements Catalog.
func (r *Repository) Tool(name string) (*Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, apperrors.NewCatalogError(name, "", "tool not found", apperrors.ErrNotFound)
	}
	return tool, nil
}

// List returns all tools sorted by name.
func (r *Repository) List() []*Tool {
	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Dir returns the directory the repository was loaded from.
func (r *Repository) Dir() string {
	return r.dir
}

// LoadToolspec parses and validates a single toolspec file.
func LoadToolspec(path string) (*Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}

	var tool Tool
	if err := yaml.Unmarshal(data, &tool); err != nil {
		return nil, apperrors.NewParseError(path, 0, err)
	}
	if strings.TrimSpace(tool.Name) == "" {
		tool.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := ValidateTool(&tool); err != nil {
		return nil, err
	}
	return &tool, nil
}

// ValidateTool checks schema rules plus uniqueness of operation and parameter names.
func ValidateTool(tool *Tool) error {
	if err := validatorInstance().Struct(tool); err != nil {
		if ves, ok := err.(validator.ValidationErrors); ok && len(ves) > 0 {
			return apperrors.NewValidationError(strings.ToLower(ves[0].StructNamespace()),
				fmt.Sprintf("failed validation for tag '%s'", ves[0].Tag()), err)
		}
		return apperrors.NewValidationError(tool.Name, err.Error(), err)
	}

	ops := make(map[string]struct{}, len(tool.Operations))
	for _, op := range tool.Operations {
		if _, dup := ops[op.Name]; dup {
			return apperrors.NewValidationError(tool.Name, fmt.Sprintf("duplicate operation %q", op.Name), nil)
		}
		ops[op.Name] = struct{}{}

		seen := make(map[string]string)
		for kind, params := range map[string][]Param{"input": op.Inputs, "output": op.Outputs, "parameter": op.Parameters} {
			for _, p := range params {
				if prev, dup := seen[p.Name]; dup {
					return apperrors.NewValidationError(fmt.Sprintf("%s.%s", tool.Name, op.Name),
						fmt.Sprintf("%q declared as both %s and %s", p.Name, prev, kind), nil)
				}
				seen[p.Name] = kind
			}
		}
	}
	return nil
}
