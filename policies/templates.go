package policies

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// DefaultPrefix is the policy file prefix used by gen-policies and create.
const DefaultPrefix = "policy"

//go:embed defaults/*.yml
var defaults embed.FS

// TemplateSet holds the templates of the three sessions of a variant.
type TemplateSet struct {
	Namespace string
	Primary   string
	Secondary string
}

type templateFile struct {
	suffix  string
	builtin string
	target  *string
}

func (v Variant) files(set *TemplateSet) []templateFile {
	if v.FileTemplates {
		return []templateFile{
			{suffix: "_namespace.yml", builtin: "defaults/cosign_namespace.yml", target: &set.Namespace},
			{suffix: "_admin.yml", builtin: "defaults/cosign_admin.yml", target: &set.Primary},
			{suffix: "_remote.yml", builtin: "defaults/cosign_remote.yml", target: &set.Secondary},
		}
	}
	return []templateFile{
		{suffix: "_namespace.yml", builtin: "defaults/otp_namespace.yml", target: &set.Namespace},
		{suffix: "_primary.yml", builtin: "defaults/otp_primary.yml", target: &set.Primary},
		{suffix: "_secondary.yml", builtin: "defaults/otp_secondary.yml", target: &set.Secondary},
	}
}

// BuiltinTemplates returns the templates shipped with the variant.
func (v Variant) BuiltinTemplates() (TemplateSet, error) {
	var set TemplateSet
	for _, f := range v.files(&set) {
		content, err := fs.ReadFile(defaults, f.builtin)
		if err != nil {
			return TemplateSet{}, fmt.Errorf("builtin template %s: %w", f.builtin, err)
		}
		*f.target = string(content)
	}
	return set, nil
}

// PolicyFiles returns the paths of the policy files for prefix in dir.
func (v Variant) PolicyFiles(dir, prefix string) []string {
	var set TemplateSet
	var paths []string
	for _, f := range v.files(&set) {
		paths = append(paths, filepath.Join(dir, prefix+f.suffix))
	}
	return paths
}

// Templates returns the templates create uses: the policy files under dir for
// file based variants, the builtin ones otherwise.
func (v Variant) Templates(dir, prefix string) (TemplateSet, error) {
	if !v.FileTemplates {
		return v.BuiltinTemplates()
	}
	return v.ReadPolicies(dir, prefix)
}

// ReadPolicies reads the policy files for prefix from dir.
func (v Variant) ReadPolicies(dir, prefix string) (TemplateSet, error) {
	var set TemplateSet
	for _, f := range v.files(&set) {
		path := filepath.Join(dir, prefix+f.suffix)
		content, err := os.ReadFile(path)
		if err != nil {
			return TemplateSet{}, fmt.Errorf("reading policy %s: %w", path, err)
		}
		*f.target = string(content)
	}
	return set, nil
}

// WritePolicies writes the builtin templates as policy files. Existing files
// are kept unless force is set and each kept file is reported as
// ErrPolicyExists once the remaining files have been written.
func (v Variant) WritePolicies(dir, prefix string, force bool, log *slog.Logger) error {
	var set TemplateSet
	var errs []error
	for _, f := range v.files(&set) {
		path := filepath.Join(dir, prefix+f.suffix)
		if _, err := os.Stat(path); err == nil && !force {
			log.Error("Policy file already exists, use --force to overwrite", slog.String("path", path))
			errs = append(errs, fmt.Errorf("%w: %s", interfaces.ErrPolicyExists, path))
			continue
		}

		content, err := fs.ReadFile(defaults, f.builtin)
		if err != nil {
			return fmt.Errorf("builtin template %s: %w", f.builtin, err)
		}
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("writing policy %s: %w", path, err)
		}
		log.Info("Written policy", slog.String("path", path))
	}
	return errors.Join(errs...)
}
