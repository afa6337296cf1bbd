package analysis

import (
	"fmt"
	"strings"
)

// SuspiciousProcessNames are matched case-insensitively as substrings of ImageFileName.
var SuspiciousProcessNames = []string{"powershell", "cmd", "wscript", "cscript", "rundll32"}

// privatePrefixes is the loopback/unspecified/private allow-list for foreign addresses.
// NOTE: prefix matching, not CIDR. "172." covers all of 172/8.
var privatePrefixes = []string{"127.", "0.0.0.0", "10.", "172.", "192.168."}

// ExtractIOCs derives IOCs from module results. Pure and deterministic:
// process IOCs first, then network, then code injection, each in record order.
// Missing or failed modules contribute nothing.
func ExtractIOCs(results ModuleResults) []IOC {
	iocs := make([]IOC, 0)
	iocs = append(iocs, suspiciousProcesses(results.Records(ModulePsList))...)
	iocs = append(iocs, externalConnections(results.Records(ModuleNetScan))...)
	iocs = append(iocs, codeInjections(results.Records(ModuleMalfind))...)
	return iocs
}

func suspiciousProcesses(records []Record) []IOC {
	var out []IOC
	for _, p := range records {
		name := getString(p, "ImageFileName")
		if !matchesSuspicious(name) {
			continue
		}
		out = append(out, IOC{
			Kind:         KindProcess,
			Value:        name,
			Confidence:   ConfidenceMedium,
			Description:  "Potentially suspicious process",
			SourceModule: ModulePsList,
			Attributes: map[string]any{
				"pid":  p["PID"],
				"ppid": p["PPID"],
			},
		})
	}
	return out
}

func matchesSuspicious(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range SuspiciousProcessNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func externalConnections(records []Record) []IOC {
	var out []IOC
	for _, c := range records {
		addr := getString(c, "ForeignAddr")
		if addr == "" || IsPrivatePrefix(addr) {
			continue
		}
		out = append(out, IOC{
			Kind:         KindNetwork,
			Value:        addr,
			Confidence:   ConfidenceHigh,
			Description:  "External network connection",
			SourceModule: ModuleNetScan,
			Attributes: map[string]any{
				"port":    c["ForeignPort"],
				"process": processName(c["Owner"]),
			},
		})
	}
	return out
}

// IsPrivatePrefix reports whether addr starts with one of the allow-listed prefixes.
func IsPrivatePrefix(addr string) bool {
	for _, p := range privatePrefixes {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}

func codeInjections(records []Record) []IOC {
	var out []IOC
	for _, inj := range records {
		proc := processName(inj["Process"])
		pid := inj["PID"]
		if m, ok := inj["Process"].(map[string]any); ok {
			pid = m["PID"]
		}
		value := proc
		if value == "" {
			value = fmt.Sprintf("pid:%v", pid)
		}
		out = append(out, IOC{
			Kind:         KindCodeInjection,
			Value:        value,
			Confidence:   ConfidenceHigh,
			Description:  "Possible code injection detected",
			SourceModule: ModuleMalfind,
			Attributes: map[string]any{
				"process":    proc,
				"pid":        pid,
				"protection": inj["Protection"],
			},
		})
	}
	return out
}

// processName handles both renderer shapes: a plain string or an object with ImageFileName.
func processName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		return getString(t, "ImageFileName")
	}
	return ""
}

func getString(d map[string]any, key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
