// Package remedy maps detected issues to human-readable advice.
package remedy

import (
	"fmt"
	"strings"

	"github.com/ftahirops/perfwatch/model"
)

// Provider looks up remediation steps for issues. The zero value is ready to use.
type Provider struct{}

// New returns a Provider.
func New() *Provider { return &Provider{} }

// Apply replaces iss.Solutions with the steps for its category and title.
func (p *Provider) Apply(iss *model.Issue) {
	iss.Solutions = p.Solutions(*iss)
}

// Solutions returns numbered remediation steps for iss.
func (p *Provider) Solutions(iss model.Issue) []string {
	var steps []string
	switch iss.Category {
	case model.CategoryCPU:
		steps = cpuSteps(iss.Title)
	case model.CategoryMemory:
		steps = memorySteps(iss.Title)
	case model.CategoryDisk:
		steps = diskSteps(iss.Title)
	case model.CategoryProcess:
		steps = processSteps(iss.AffectedComponent)
	default:
		steps = generalSteps()
	}
	return number(steps)
}

// QuickFix returns a one-line fix for iss.
func (p *Provider) QuickFix(iss model.Issue) string {
	switch iss.Category {
	case model.CategoryCPU:
		return "Quick Fix: close unneeded programs and check `top -o %CPU` for CPU hogs"
	case model.CategoryMemory:
		return "Quick Fix: close unused applications and check `ps aux --sort=-rss | head`"
	case model.CategoryDisk:
		return "Quick Fix: pause large file transfers and check `iotop -oP` for heavy writers"
	case model.CategoryProcess:
		return fmt.Sprintf("Quick Fix: stop '%s' if it is not needed", iss.AffectedComponent)
	default:
		return "Quick Fix: restart the machine to clear transient load"
	}
}

func cpuSteps(title string) []string {
	switch {
	case containsAny(title, "Spike", "Freeze"):
		return []string{
			"Run `top -o %CPU` and find the process that spiked",
			"Check for scheduled jobs that fire at that moment (cron, systemd timers)",
			"Stop the process if it is not critical",
			"Check whether package updates or indexers are running in the background",
			"Disable unneeded services started at boot",
		}
	case strings.Contains(title, "Sustained"):
		return []string{
			"Identify CPU-heavy processes with `ps -eo pid,comm,%cpu --sort=-%cpu | head`",
			"Close unnecessary applications and browser tabs",
			"Scan for unexpected processes such as miners",
			"Update kernel and drivers, especially graphics and chipset",
			"Spread or reduce the workload, or add CPU capacity",
			"Check CPU temperature for thermal throttling",
		}
	default:
		return []string{
			"Close unnecessary programs to reduce CPU load",
			"Restart long-running applications that have grown busy",
			"Check CPU temperature, overheating causes throttling",
		}
	}
}

func memorySteps(title string) []string {
	if strings.Contains(title, "Leak") {
		return []string{
			"Find the process whose memory keeps growing with `ps aux --sort=-rss | head`",
			"Restart the offending application",
			"Update the application to its latest version",
			"Report the leak to the application's maintainers",
			"As a stopgap, restart the application on a schedule",
		}
	}
	return []string{
		"Close unused applications and browser tabs",
		"Check the largest consumers with `ps aux --sort=-rss | head`",
		"Check swap activity with `vmstat 1 5`",
		"Add or enlarge swap if the workload is bursty",
		"Disable services that are not needed",
		"Add RAM if this happens frequently",
	}
}

func diskSteps(title string) []string {
	if strings.Contains(title, "Bottleneck") {
		return []string{
			"Find the processes doing I/O with `iotop -oP`",
			"Check device queue depth and latency with `iostat -xz 1 5`",
			"Pause file indexers and backup jobs temporarily",
			"Free space, keep at least 15% of the filesystem empty",
			"Check drive health with `smartctl -a <device>`",
			"Move hot data to an SSD",
		}
	}
	return []string{
		"Identify disk-heavy processes with `iotop -oP`",
		"Pause file transfers or downloads temporarily",
		"Postpone package updates that are running",
		"Free space, keep at least 15% of the filesystem empty",
		"Consider moving to an SSD",
	}
}

func processSteps(name string) []string {
	steps := []string{
		fmt.Sprintf("Stop '%s' if it is not needed", name),
		"Restart the application to release leaked memory",
		"Check whether the application has updates available",
		"Reduce the workload inside the application",
	}
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "chrome", "firefox", "edge", "browser"):
		steps = append(steps,
			"Close unnecessary browser tabs and extensions",
			"Clear the browser cache",
			"Disable hardware acceleration in the browser settings",
		)
	case containsAny(lower, "antimalware", "defender", "clamd", "antivirus"):
		steps = append(steps,
			"Schedule scans for off-peak hours",
			"Exclude trusted directories from scanning",
		)
	case strings.Contains(lower, "system"):
		steps = append(steps,
			"This is a system process, check for pending OS updates",
			"Check the system journal with `journalctl -p warning -b`",
		)
	}
	return steps
}

func generalSteps() []string {
	return []string{
		"Restart the machine",
		"Install pending OS updates",
		"Check the system journal with `journalctl -p warning -b`",
		"Update device drivers",
		"Scan for malware",
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func number(steps []string) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return out
}
