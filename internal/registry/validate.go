package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Validation never returns an error or
// panics; callers decide what to do with the accumulated issues.
type Issue struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Field, i.Message)
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidateItem checks a wrapped registration: version format plus the
// per-variant capability rules.
func ValidateItem(item *Item) []Issue {
	var issues []Issue

	if item.Version == "" {
		issues = append(issues, Issue{
			Field:    "version",
			Message:  "version is required",
			Severity: SeverityError,
		})
	} else if !semverPattern.MatchString(item.Version) {
		issues = append(issues, Issue{
			Field:    "version",
			Message:  fmt.Sprintf("version %q is not in X.Y.Z form", item.Version),
			Severity: SeverityError,
		})
	}

	issues = append(issues, ValidateCapability(item.Value)...)
	return issues
}

// ValidateCapability checks the variant-specific required fields:
// tools need a name, description and handler; commands need slash-prefixed
// names and a handler; service specs need an interface plus a constructor
// or factory.
func ValidateCapability(cap Capability) []Issue {
	if cap == nil {
		return []Issue{{Field: "capability", Message: "capability is nil", Severity: SeverityError}}
	}

	switch v := cap.(type) {
	case Tool:
		return validateTool(v)
	case *Tool:
		return validateTool(*v)
	case Command:
		return validateCommand(v)
	case *Command:
		return validateCommand(*v)
	case ServiceSpec:
		return validateServiceSpec(v)
	case *ServiceSpec:
		return validateServiceSpec(*v)
	default:
		return []Issue{{
			Field:    "capability",
			Message:  fmt.Sprintf("unknown capability variant %T", cap),
			Severity: SeverityError,
		}}
	}
}

func validateTool(t Tool) []Issue {
	var issues []Issue
	if t.Name == "" {
		issues = append(issues, Issue{Field: "name", Message: "tool name is required", Severity: SeverityError})
	}
	if t.Description == "" {
		issues = append(issues, Issue{Field: "description", Message: "tool description is required", Severity: SeverityError})
	}
	if t.Handler == nil {
		issues = append(issues, Issue{Field: "handler", Message: "tool handler is required", Severity: SeverityError})
	}
	if len(t.Parameters) == 0 {
		issues = append(issues, Issue{Field: "parameters", Message: "tool declares no parameters", Severity: SeverityWarning})
	}
	return issues
}

func validateCommand(c Command) []Issue {
	var issues []Issue
	if c.Name == "" {
		issues = append(issues, Issue{Field: "name", Message: "command name is required", Severity: SeverityError})
	} else if !strings.HasPrefix(c.Name, "/") {
		issues = append(issues, Issue{Field: "name", Message: fmt.Sprintf("command name %q must start with /", c.Name), Severity: SeverityError})
	}
	if c.Handler == nil {
		issues = append(issues, Issue{Field: "handler", Message: "command handler is required", Severity: SeverityError})
	}
	if c.Description == "" {
		issues = append(issues, Issue{Field: "description", Message: "command has no description", Severity: SeverityWarning})
	}
	return issues
}

func validateServiceSpec(s ServiceSpec) []Issue {
	var issues []Issue
	if s.Name == "" {
		issues = append(issues, Issue{Field: "name", Message: "service name is required", Severity: SeverityError})
	}
	if s.Interface == nil {
		issues = append(issues, Issue{Field: "interface", Message: "service interface type is required", Severity: SeverityError})
	}
	if s.Constructor == nil && s.Factory == nil {
		issues = append(issues, Issue{Field: "constructor", Message: "service needs a constructor or a factory", Severity: SeverityError})
	}
	return issues
}

// HasErrors reports whether any issue carries error severity.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}
