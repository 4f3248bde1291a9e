package timing

// Origin is the provenance bucket of a module.
type Origin string

// Module origins.
const (
	OriginBuiltin    Origin = "builtin"
	OriginFramework  Origin = "framework"
	OriginThirdParty Origin = "third_party"
	OriginUser       Origin = "user"
)

// AppFileCategory is the semantic role of a user-code module.
type AppFileCategory string

// App file categories, in classification priority order.
const (
	CategoryController AppFileCategory = "controller"
	CategoryService    AppFileCategory = "service"
	CategoryModel      AppFileCategory = "model"
	CategoryMiddleware AppFileCategory = "middleware"
	CategoryValidator  AppFileCategory = "validator"
	CategoryException  AppFileCategory = "exception"
	CategoryEvent      AppFileCategory = "event"
	CategoryListener   AppFileCategory = "listener"
	CategoryMailer     AppFileCategory = "mailer"
	CategoryPolicy     AppFileCategory = "policy"
	CategoryCommand    AppFileCategory = "command"
	CategoryProvider   AppFileCategory = "provider"
	CategoryConfig     AppFileCategory = "config"
	CategoryStart      AppFileCategory = "start"
	CategoryOther      AppFileCategory = "other"
)

var categoryDisplayNames = map[AppFileCategory]string{
	CategoryController: "Controllers",
	CategoryService:    "Services",
	CategoryModel:      "Models",
	CategoryMiddleware: "Middleware",
	CategoryValidator:  "Validators",
	CategoryException:  "Exceptions",
	CategoryEvent:      "Events",
	CategoryListener:   "Listeners",
	CategoryMailer:     "Mailers",
	CategoryPolicy:     "Policies",
	CategoryCommand:    "Commands",
	CategoryProvider:   "Providers",
	CategoryConfig:     "Config",
	CategoryStart:      "Start Files",
	CategoryOther:      "Other",
}

// DisplayName returns the plural heading used in reports.
func (c AppFileCategory) DisplayName() string {
	if name, ok := categoryDisplayNames[c]; ok {
		return name
	}
	return string(c)
}

// ProcessStats is a resource snapshot of the target process taken right
// before it was terminated.
type ProcessStats struct {
	PID        int32  `json:"pid"`
	RSSBytes   uint64 `json:"rssBytes"`
	VMSBytes   uint64 `json:"vmsBytes"`
	NumThreads int32  `json:"numThreads"`
}

// ProfileResult is the immutable snapshot of one profiling session.
// It is built once and never mutated; derived views are new values.
type ProfileResult struct {
	SessionID      string                 `json:"sessionId,omitempty"`
	TotalTime      float64                `json:"totalTime"`
	StartTimestamp float64                `json:"startTimestamp"`
	EndTimestamp   float64                `json:"endTimestamp"`
	Modules        []ModuleTiming         `json:"modules"`
	Components     []ComponentPhaseTiming `json:"components"`
	Summary        ProfileSummary         `json:"summary"`
	Partial        bool                   `json:"partial"`
	DroppedEvents  int64                  `json:"droppedEvents,omitempty"`
	Process        *ProcessStats          `json:"process,omitempty"`
}

// ProfileSummary holds counts and totals derived from a result.
type ProfileSummary struct {
	TotalModules       int            `json:"totalModules"`
	BuiltinModules     int            `json:"builtinModules"`
	UserModules        int            `json:"userModules"`
	ThirdPartyModules  int            `json:"thirdPartyModules"`
	FrameworkModules   int            `json:"frameworkModules"`
	TotalModuleTime    float64        `json:"totalModuleTime"`
	TotalComponentTime float64        `json:"totalComponentTime"`
	AppFileGroups      []AppFileGroup `json:"appFileGroups"`
}

// PackageGroup buckets modules by dependency package.
type PackageGroup struct {
	Name      string         `json:"name"`
	TotalTime float64        `json:"totalTime"`
	Modules   []ModuleTiming `json:"modules"`
}

// AppFileGroup buckets user-code modules by semantic role.
type AppFileGroup struct {
	Category    AppFileCategory `json:"category"`
	DisplayName string          `json:"displayName"`
	TotalTime   float64         `json:"totalTime"`
	Files       []ModuleTiming  `json:"files"`
}

// ComponentGroup gathers the phase durations of one bootstrap component.
type ComponentGroup struct {
	Name      string            `json:"name"`
	Phases    map[Phase]float64 `json:"phases"`
	TotalTime float64           `json:"totalTime"`
}

// Config is the surface the collector and reporters consume.
type Config struct {
	// TopModules is the number of slowest modules to display.
	TopModules int `json:"topModules"`
	// Threshold drops modules whose effective time is below it (ms).
	Threshold float64 `json:"threshold"`
	// IncludeThirdParty keeps third-party and framework-internal modules.
	IncludeThirdParty bool `json:"includeThirdParty"`
	// GroupByPackage enables the per-package section.
	GroupByPackage bool `json:"groupByPackage"`
	// Where is an optional CEL predicate applied after the other filters.
	Where string `json:"where,omitempty"`
}

// DefaultConfig mirrors the CLI defaults.
func DefaultConfig() Config {
	return Config{
		TopModules:        20,
		Threshold:         1,
		IncludeThirdParty: true,
		GroupByPackage:    true,
	}
}
