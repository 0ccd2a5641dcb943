// Package autocorrect implements the Autocorrection Engine: a pure mapping
// from an observed command failure to a candidate replacement command. The
// engine never executes anything — it only proposes; the Executor decides
// whether and how to apply a candidate.
package autocorrect

import (
	"context"
	"regexp"
	"strings"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// CorrectionType classifies how a candidate was derived.
type CorrectionType string

const (
	TypePrependSudo       CorrectionType = "prepend_sudo"
	TypeInstallMissing    CorrectionType = "install_missing_command"
	TypePackageUpdate     CorrectionType = "package_update_retry"
	TypeServiceReload     CorrectionType = "service_daemon_reload"
	TypeModelRewrite      CorrectionType = "model_rewrite"
	TypeDiskCleanup       CorrectionType = "disk_cleanup_candidate"
	TypeNetworkInterface  CorrectionType = "network_interface_up"
	TypeNone              CorrectionType = "none"
)

// Candidate is the engine's proposed fix for one failed command.
type Candidate struct {
	CorrectedCommand string
	CorrectionType    CorrectionType
	Confidence        float64
}

// PackageManager abstracts the detected package manager used by the
// command-not-found and package-not-found rules.
type PackageManager struct {
	UpdateCommand  string
	InstallCommand string // expects one %s for the package name
}

// Detected package managers, keyed by os_type.
var packageManagers = map[string]PackageManager{
	"ubuntu": {UpdateCommand: "sudo apt update", InstallCommand: "sudo apt install -y %s"},
	"debian": {UpdateCommand: "sudo apt update", InstallCommand: "sudo apt install -y %s"},
	"centos": {UpdateCommand: "sudo yum update -y", InstallCommand: "sudo yum install -y %s"},
	"rhel":   {UpdateCommand: "sudo yum update -y", InstallCommand: "sudo yum install -y %s"},
}

func packageManagerFor(osType string) PackageManager {
	if pm, ok := packageManagers[strings.ToLower(osType)]; ok {
		return pm
	}
	return packageManagers["ubuntu"]
}

// Engine runs the ordered rule set against a command/failure pair, falling
// back to a single model-rewrite attempt when no rule matches.
type Engine struct {
	ai              coreapi.AIClient
	osType          string
	attemptedRewrite map[string]bool
}

// New creates an Engine. ai may be nil, in which case the model-rewrite
// fallback always yields TypeNone.
func New(ai coreapi.AIClient, osType string) *Engine {
	if osType == "" {
		osType = "ubuntu"
	}
	return &Engine{ai: ai, osType: osType, attemptedRewrite: map[string]bool{}}
}

// Correct maps (original command, stderr) to a Candidate, consulting the
// rule set in a fixed priority order. The first matching rule wins.
func (e *Engine) Correct(ctx context.Context, originalCommand, stderr string) Candidate {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "permission denied") && !hasSudo(originalCommand):
		return Candidate{CorrectedCommand: "sudo " + originalCommand, CorrectionType: TypePrependSudo, Confidence: 0.9}

	case strings.Contains(lower, "command not found"):
		pm := packageManagerFor(e.osType)
		pkg := firstWord(originalCommand)
		return Candidate{
			CorrectedCommand: pm.UpdateCommand + " && " + sprintfInstall(pm, pkg) + " && " + originalCommand,
			CorrectionType:   TypeInstallMissing,
			Confidence:       0.6,
		}

	case containsAll(lower, "package", "not found") || strings.Contains(lower, "unable to locate"):
		pm := packageManagerFor(e.osType)
		return Candidate{
			CorrectedCommand: pm.UpdateCommand + " && " + originalCommand,
			CorrectionType:   TypePackageUpdate,
			Confidence:       0.7,
		}

	case strings.Contains(lower, "unit not found"):
		return Candidate{
			CorrectedCommand: "sudo systemctl daemon-reload && " + originalCommand,
			CorrectionType:   TypeServiceReload,
			Confidence:       0.5,
		}

	case strings.Contains(lower, "no space left") || strings.Contains(lower, "disk full"):
		// Disk exhaustion is not autocorrectable; surface a cleanup
		// candidate instead of a fix.
		return Candidate{
			CorrectedCommand: "df -h && du -sh /var/log/* 2>/dev/null | sort -rh | head -10",
			CorrectionType:   TypeDiskCleanup,
			Confidence:       0.2,
		}

	case strings.Contains(lower, "network is unreachable"):
		if iface := extractInterface(originalCommand); iface != "" {
			return Candidate{
				CorrectedCommand: "sudo ip link set " + iface + " up && " + originalCommand,
				CorrectionType:   TypeNetworkInterface,
				Confidence:       0.4,
			}
		}

	case strings.Contains(lower, "syntax error"):
		return e.modelRewrite(ctx, originalCommand, stderr)
	}

	return Candidate{CorrectionType: TypeNone}
}

// modelRewrite asks the model for one rewrite attempt, bounded to a single
// attempt per original command.
func (e *Engine) modelRewrite(ctx context.Context, originalCommand, stderr string) Candidate {
	if e.ai == nil || e.attemptedRewrite[originalCommand] {
		return Candidate{CorrectionType: TypeNone}
	}
	e.attemptedRewrite[originalCommand] = true

	resp, err := e.ai.Complete(ctx, coreapi.CompletionRequest{
		SystemMessage: "You fix shell command syntax errors. Reply with only the corrected command, no explanation.",
		Prompt:        "Command: " + originalCommand + "\nError: " + stderr,
		Temperature:   0,
		MaxTokens:     200,
	})
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Candidate{CorrectionType: TypeNone}
	}
	return Candidate{CorrectedCommand: strings.TrimSpace(resp.Content), CorrectionType: TypeModelRewrite, Confidence: 0.5}
}

func hasSudo(command string) bool {
	return strings.HasPrefix(strings.TrimSpace(command), "sudo ")
}

func firstWord(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return command
	}
	if fields[0] == "sudo" && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

func sprintfInstall(pm PackageManager, pkg string) string {
	return strings.Replace(pm.InstallCommand, "%s", pkg, 1)
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		if !strings.Contains(haystack, n) {
			return false
		}
	}
	return true
}

var interfacePattern = regexp.MustCompile(`\b(eth\d+|ens\d+|enp\d+s\d+|wlan\d+)\b`)

func extractInterface(command string) string {
	return interfacePattern.FindString(command)
}
