package validator

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// ValidationContext carries the calling step/task identity for structured
// logging on rejection.
type ValidationContext struct {
	StepID string
	TaskID string
}

// Result is the outcome of Validate.
type Result struct {
	Valid                bool
	SecurityLevel        SecurityLevel
	Errors               []string
	Warnings             []string
	RequiresConfirmation bool
}

// Validator is the stateless decision engine gating every generated command.
// Its rule sets are swapped atomically so Validate never blocks on a write.
type Validator struct {
	rules  atomic.Pointer[ruleSet]
	logger coreapi.Logger
}

// New creates a Validator seeded with the default forbidden/dangerous rule
// sets. Pass a whitelist to run in allow-list-only mode.
func New(logger coreapi.Logger, allowList ...string) *Validator {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	v := &Validator{logger: logger}
	rs := newDefaultRuleSet()
	if len(allowList) > 0 {
		rs.allowList = allowList
		rs.whitelist = true
	}
	v.rules.Store(rs)
	return v
}

// Validate applies the three-rule-family decision order: whitelist
// rejection, forbidden rejection, dangerous-pattern warning, else pass with
// security_level "low".
func (v *Validator) Validate(command string, ctx *ValidationContext) Result {
	rs := v.rules.Load()
	res := Result{Valid: true, SecurityLevel: SecurityLow}

	if rs.whitelist && !inAllowList(rs.allowList, command) {
		res.Valid = false
		res.SecurityLevel = SecurityHigh
		res.Errors = append(res.Errors, "command not in allow-list")
		v.logRejection(command, ctx, res.Errors)
		return res
	}

	if forbidden, matched := matchForbidden(rs.forbidden, command); forbidden {
		res.Valid = false
		res.SecurityLevel = SecurityCritical
		res.Errors = append(res.Errors, fmt.Sprintf("forbidden command pattern: %q", matched))
		v.logRejection(command, ctx, res.Errors)
		return res
	}

	maxLevel := SecurityLow
	for _, dp := range rs.dangerous {
		if !dp.re.MatchString(command) {
			continue
		}
		res.Warnings = append(res.Warnings, dp.description)
		if dp.destructive {
			res.RequiresConfirmation = true
		}
		if rank(dp.level) > rank(maxLevel) {
			maxLevel = dp.level
		}
	}
	res.SecurityLevel = maxLevel
	return res
}

func rank(l SecurityLevel) int {
	switch l {
	case SecurityCritical:
		return 3
	case SecurityHigh:
		return 2
	case SecurityMedium:
		return 1
	default:
		return 0
	}
}

func matchForbidden(forbidden []string, command string) (bool, string) {
	lower := strings.ToLower(command)
	for _, f := range forbidden {
		if strings.Contains(lower, strings.ToLower(f)) {
			return true, f
		}
	}
	return false, ""
}

func inAllowList(allow []string, command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	base := fields[0]
	for _, a := range allow {
		if a == base || a == command {
			return true
		}
	}
	return false
}

func (v *Validator) logRejection(command string, ctx *ValidationContext, errs []string) {
	fields := map[string]interface{}{"command": command, "errors": errs}
	if ctx != nil {
		fields["step_id"] = ctx.StepID
		fields["task_id"] = ctx.TaskID
	}
	v.logger.Warn("command rejected by validator", fields)
}

// AddForbidden appends a forbidden substring to the active rule set.
func (v *Validator) AddForbidden(pattern string) {
	for {
		old := v.rules.Load()
		next := old.clone()
		next.forbidden = append(next.forbidden, pattern)
		if v.rules.CompareAndSwap(old, next) {
			return
		}
	}
}

// RemoveForbidden drops pattern from the active forbidden set, if present.
func (v *Validator) RemoveForbidden(pattern string) {
	for {
		old := v.rules.Load()
		next := old.clone()
		out := next.forbidden[:0]
		for _, f := range next.forbidden {
			if f != pattern {
				out = append(out, f)
			}
		}
		next.forbidden = out
		if v.rules.CompareAndSwap(old, next) {
			return
		}
	}
}

// AddDangerousPattern compiles and appends a new dangerous regex, always
// reported at SecurityMedium and non-destructive — callers needing destructive/critical classification should use a rule set
// seeded via New plus AddForbidden instead.
func (v *Validator) AddDangerousPattern(pattern, description string) error {
	dp, err := compileDangerPattern(pattern, description)
	if err != nil {
		return err
	}
	for {
		old := v.rules.Load()
		next := old.clone()
		next.dangerous = append(next.dangerous, dp)
		if v.rules.CompareAndSwap(old, next) {
			return nil
		}
	}
}

func compileDangerPattern(pattern, description string) (dangerPattern, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return dangerPattern{}, fmt.Errorf("compile dangerous pattern %q: %w", pattern, err)
	}
	return dangerPattern{re: re, description: description, destructive: false, level: SecurityMedium}, nil
}
