package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	briefMaxIOCs       = 10
	briefMaxSystemInfo = 20
)

// Brief is the bounded findings summary sent to the reasoning service.
type Brief struct {
	ClientID            string    `json:"client_id"`
	GeneratedAt         time.Time `json:"timestamp"`
	ProcessCount        int       `json:"process_count"`
	ConnectionCount     int       `json:"network_connections"`
	SuspiciousProcesses int       `json:"suspicious_processes"`
	NetworkIOCs         int       `json:"network_iocs"`
	CodeInjections      int       `json:"code_injections"`
	KeyIOCs             []IOC     `json:"key_iocs"`
	SystemInfo          []Record  `json:"system_info"`
	FailedModules       []string  `json:"failed_modules,omitempty"`
}

// BuildBrief summarises module output and IOCs; size is bounded regardless of input.
func BuildBrief(clientID string, results ModuleResults, iocs []IOC, now time.Time) Brief {
	b := Brief{
		ClientID:        clientID,
		GeneratedAt:     now.UTC(),
		ProcessCount:    len(results.Records(ModulePsList)),
		ConnectionCount: len(results.Records(ModuleNetScan)),
		KeyIOCs:         []IOC{},
		SystemInfo:      []Record{},
	}
	for _, i := range iocs {
		switch i.Kind {
		case KindProcess:
			b.SuspiciousProcesses++
		case KindNetwork:
			b.NetworkIOCs++
		case KindCodeInjection:
			b.CodeInjections++
		}
	}
	if len(iocs) > briefMaxIOCs {
		b.KeyIOCs = append(b.KeyIOCs, iocs[:briefMaxIOCs]...)
	} else {
		b.KeyIOCs = append(b.KeyIOCs, iocs...)
	}
	info := results.Records(ModuleInfo)
	if len(info) > briefMaxSystemInfo {
		info = info[:briefMaxSystemInfo]
	}
	b.SystemInfo = append(b.SystemInfo, info...)

	b.FailedModules = results.Failures()
	return b
}

// Topic renders the brief as the research topic text.
func (b Brief) Topic() string {
	iocJSON, err := json.MarshalIndent(b.KeyIOCs, "", "  ")
	if err != nil {
		iocJSON = []byte("[]")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze this memory forensics data from client %s:\n\n", b.ClientID)
	fmt.Fprintf(&sb, "System has %d running processes and %d network connections.\n\n", b.ProcessCount, b.ConnectionCount)
	sb.WriteString("Suspicious findings:\n")
	fmt.Fprintf(&sb, "- %d suspicious processes\n", b.SuspiciousProcesses)
	fmt.Fprintf(&sb, "- %d external network connections\n", b.NetworkIOCs)
	fmt.Fprintf(&sb, "- %d potential code injections\n\n", b.CodeInjections)

	if len(b.SystemInfo) > 0 {
		sb.WriteString("System information:\n")
		for _, row := range b.SystemInfo {
			// windows.info rows are Variable/Value pairs
			if v, ok := row["Variable"]; ok {
				fmt.Fprintf(&sb, "- %v: %v\n", v, row["Value"])
				continue
			}
			raw, _ := json.Marshal(row)
			fmt.Fprintf(&sb, "- %s\n", raw)
		}
		sb.WriteString("\n")
	}
	if len(b.FailedModules) > 0 {
		fmt.Fprintf(&sb, "Modules that failed to run: %s\n\n", strings.Join(b.FailedModules, ", "))
	}

	fmt.Fprintf(&sb, "Key IOCs detected (first %d):\n%s\n\n", briefMaxIOCs, iocJSON)
	sb.WriteString("Provide:\n")
	sb.WriteString("1. Threat assessment and risk score (0-100)\n")
	sb.WriteString("2. Potential attack vectors or malware families\n")
	sb.WriteString("3. Recommended immediate response actions\n")
	sb.WriteString("4. Additional investigation steps\n")
	return sb.String()
}
