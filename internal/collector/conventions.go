// Package collector turns raw module and component timings into the
// categorised, filtered, grouped and summarised views reports consume.
//
// Every function is pure: it never mutates its input and returns the same
// output for the same input regardless of call order.
package collector

import (
	"regexp"
	"strings"
	"sync"

	"github.com/coral-mesh/docteur/internal/constants"
	"github.com/coral-mesh/docteur/pkg/timing"
)

// Conventions are the path and namespace rules used to bucket modules.
type Conventions struct {
	// BuiltinPrefix marks runtime built-in modules.
	BuiltinPrefix string `yaml:"builtin_prefix" json:"builtin_prefix" env:"DOCTEUR_BUILTIN_PREFIX"`
	// DependencyDir is the directory third-party packages are installed in.
	DependencyDir string `yaml:"dependency_dir" json:"dependency_dir" env:"DOCTEUR_DEPENDENCY_DIR"`
	// FrameworkScope is the package scope of the bootstrap framework,
	// including the trailing slash.
	FrameworkScope string `yaml:"framework_scope" json:"framework_scope" env:"DOCTEUR_FRAMEWORK_SCOPE"`
}

// DefaultConventions returns the conventions of a Node.js AdonisJS application.
func DefaultConventions() Conventions {
	return Conventions{
		BuiltinPrefix:  constants.DefaultBuiltinPrefix,
		DependencyDir:  constants.DefaultDependencyDir,
		FrameworkScope: constants.DefaultFrameworkScope,
	}
}

func (c Conventions) withDefaults() Conventions {
	d := DefaultConventions()
	if c.BuiltinPrefix == "" {
		c.BuiltinPrefix = d.BuiltinPrefix
	}
	if c.DependencyDir == "" {
		c.DependencyDir = d.DependencyDir
	}
	if c.FrameworkScope == "" {
		c.FrameworkScope = d.FrameworkScope
	}
	return c
}

func (c Conventions) depMarker() string {
	return strings.Trim(c.DependencyDir, "/") + "/"
}

func normalize(id string) string {
	return strings.ReplaceAll(id, `\`, "/")
}

// Categorize returns the origin bucket of a module identifier. It is total:
// anything that is not a built-in or a dependency is user code.
func (c Conventions) Categorize(id string) timing.Origin {
	id = normalize(id)
	marker := c.depMarker()
	switch {
	case strings.HasPrefix(id, c.BuiltinPrefix):
		return timing.OriginBuiltin
	case strings.Contains(id, marker+c.FrameworkScope):
		return timing.OriginFramework
	case strings.Contains(id, marker):
		return timing.OriginThirdParty
	default:
		return timing.OriginUser
	}
}

type appFileRule struct {
	category timing.AppFileCategory
	dirs     []string
	suffix   string
}

// appFileRules are evaluated in order; the first match wins.
var appFileRules = []appFileRule{
	{timing.CategoryController, []string{"/controllers/"}, "_controller."},
	{timing.CategoryService, []string{"/services/"}, "_service."},
	{timing.CategoryModel, []string{"/models/", "/model/"}, ""},
	{timing.CategoryMiddleware, []string{"/middleware/"}, "_middleware."},
	{timing.CategoryValidator, []string{"/validators/"}, "_validator."},
	{timing.CategoryException, []string{"/exceptions/"}, "_exception."},
	{timing.CategoryEvent, []string{"/events/"}, "_event."},
	{timing.CategoryListener, []string{"/listeners/"}, "_listener."},
	{timing.CategoryMailer, []string{"/mailers/"}, "_mailer."},
	{timing.CategoryPolicy, []string{"/policies/"}, "_policy."},
	{timing.CategoryCommand, []string{"/commands/"}, "_command."},
	{timing.CategoryProvider, []string{"/providers/"}, "_provider."},
	{timing.CategoryConfig, []string{"/config/"}, ""},
	{timing.CategoryStart, []string{"/start/"}, ""},
}

// CategorizeAppFile assigns a semantic role to a user-code module by its
// directory or file suffix. Matching is case-insensitive.
func CategorizeAppFile(id string) timing.AppFileCategory {
	path := strings.ToLower(normalize(id))
	for _, rule := range appFileRules {
		for _, dir := range rule.dirs {
			if strings.Contains(path, dir) {
				return rule.category
			}
		}
		if rule.suffix != "" && strings.Contains(path, rule.suffix) {
			return rule.category
		}
	}
	return timing.CategoryOther
}

var packagePatterns sync.Map // dependency dir -> *regexp.Regexp

func (c Conventions) packagePattern() *regexp.Regexp {
	if re, ok := packagePatterns.Load(c.DependencyDir); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(regexp.QuoteMeta(c.depMarker()) + `(@[^/]+/[^/]+|[^/]+)`)
	packagePatterns.Store(c.DependencyDir, re)
	return re
}

// ExtractPackageName returns the dependency package a module belongs to,
// including its scope.
func (c Conventions) ExtractPackageName(id string) (string, bool) {
	m := c.packagePattern().FindStringSubmatch(normalize(id))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SimplifyURL shortens an identifier for display: the file:// scheme is
// dropped, paths under cwd become ./relative and dependency paths keep only
// the part after the dependency directory.
func (c Conventions) SimplifyURL(id, cwd string) string {
	s := strings.TrimPrefix(normalize(id), "file://")
	cwd = strings.TrimSuffix(normalize(cwd), "/")
	if cwd != "" && (s == cwd || strings.HasPrefix(s, cwd+"/")) {
		s = "." + s[len(cwd):]
	}
	if i := strings.Index(s, c.depMarker()); i >= 0 {
		if rest := s[i+len(c.depMarker()):]; rest != "" {
			s = rest
		}
	}
	return s
}
