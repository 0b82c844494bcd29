package reclass

// Settings is the value object threaded through every call in the
// engine (spec.md §6 "Recognized settings", §9 "Global state: no
// process-wide singletons"). It is adapted from the teacher's
// internal/config.Config shape but scoped to the settings this
// specification actually names.
type Settings struct {
	Delimiter             string `yaml:"delimiter" json:"delimiter"`
	ReferenceSentinelOpen  string `yaml:"reference_sentinel_open" json:"reference_sentinel_open"`
	ReferenceSentinelClose string `yaml:"reference_sentinel_close" json:"reference_sentinel_close"`
	ExportSentinelOpen     string `yaml:"export_sentinel_open" json:"export_sentinel_open"`
	ExportSentinelClose    string `yaml:"export_sentinel_close" json:"export_sentinel_close"`
	EscapeCharacter        string `yaml:"escape_character" json:"escape_character"`

	DictKeyOverridePrefix string `yaml:"dict_key_override_prefix" json:"dict_key_override_prefix"`
	DictKeyConstantPrefix string `yaml:"dict_key_constant_prefix" json:"dict_key_constant_prefix"`

	AllowScalarOverDict bool `yaml:"allow_scalar_over_dict" json:"allow_scalar_over_dict"`
	AllowScalarOverList bool `yaml:"allow_scalar_over_list" json:"allow_scalar_over_list"`
	AllowListOverScalar bool `yaml:"allow_list_over_scalar" json:"allow_list_over_scalar"`
	AllowDictOverScalar bool `yaml:"allow_dict_over_scalar" json:"allow_dict_over_scalar"`
	AllowNoneOverride   bool `yaml:"allow_none_override" json:"allow_none_override"`

	AutomaticParameters bool `yaml:"automatic_parameters" json:"automatic_parameters"`

	DefaultEnvironment string `yaml:"default_environment" json:"default_environment"`

	InventoryIgnoreFailedNode   bool `yaml:"inventory_ignore_failed_node" json:"inventory_ignore_failed_node"`
	InventoryIgnoreFailedRender bool `yaml:"inventory_ignore_failed_render" json:"inventory_ignore_failed_render"`

	StrictConstantParameters bool `yaml:"strict_constant_parameters" json:"strict_constant_parameters"`

	IgnoreClassNotfound        bool   `yaml:"ignore_class_notfound" json:"ignore_class_notfound"`
	IgnoreClassNotfoundRegexp  string `yaml:"ignore_class_notfound_regexp" json:"ignore_class_notfound_regexp"`
	IgnoreClassNotfoundWarning bool   `yaml:"ignore_class_notfound_warning" json:"ignore_class_notfound_warning"`

	IgnoreOverwrittenMissingReferences bool `yaml:"ignore_overwritten_missing_references" json:"ignore_overwritten_missing_references"`

	GroupErrors bool `yaml:"group_errors" json:"group_errors"`

	ComposeNodeName bool `yaml:"compose_node_name" json:"compose_node_name"`
}

// DefaultSettings returns the settings object with every documented
// default applied (spec.md §6).
func DefaultSettings() *Settings {
	return &Settings{
		Delimiter:              ":",
		ReferenceSentinelOpen:  "${",
		ReferenceSentinelClose: "}",
		ExportSentinelOpen:     "$[",
		ExportSentinelClose:    "]",
		EscapeCharacter:        "\\",

		DictKeyOverridePrefix: "~",
		DictKeyConstantPrefix: "=",

		AutomaticParameters: true,

		DefaultEnvironment: "base",

		StrictConstantParameters: true,

		IgnoreClassNotfoundRegexp:  ".*",
		IgnoreClassNotfoundWarning: true,

		IgnoreOverwrittenMissingReferences: true,

		GroupErrors: true,
	}
}

// Sentinels converts the flat settings fields into a Sentinels value
// for the grammar package.
func (s *Settings) Sentinels() Sentinels {
	esc := byte('\\')
	if len(s.EscapeCharacter) > 0 {
		esc = s.EscapeCharacter[0]
	}
	return Sentinels{
		RefOpen:    s.ReferenceSentinelOpen,
		RefClose:   s.ReferenceSentinelClose,
		InvOpen:    s.ExportSentinelOpen,
		InvClose:   s.ExportSentinelClose,
		EscapeChar: esc,
	}
}
