package excel

import (
	"path/filepath"
	"regexp"
	"strings"

	"cellqc/domain/cycling"
)

// copySuffix matches the " (1)" that file managers append to duplicates.
var copySuffix = regexp.MustCompile(`\s*\(\d+\)$`)

// FileInfo is what a cycler export name says about its channel
type FileInfo struct {
	Name     string
	Host     string
	Channel  string
	BatchKey string
	Mode     string
}

// ID returns "<host>/<channel>", or the bare file name when the name did
// not follow the host-channel layout.
func (fi FileInfo) ID() cycling.ChannelID {
	if fi.Host == "" || fi.Channel == "" {
		return cycling.ChannelID(stem(fi.Name))
	}
	return cycling.ChannelID(fi.Host + "/" + fi.Channel)
}

// ParseFileName splits an export name such as
// "M2-PC2-036-8-1-LFP0101-0.1C-1018_2 (1).xlsx" into host "M2-PC2-036",
// channel "8-1", batch "LFP0101-0.1C-1018-2" and mode "-0.1C-".
//
// Hosts written as an IP address take two dash segments
// ("192.168.110.236-270060-7-5-..."), other hosts take three. The channel is
// the next two segments and the batch key is everything after it, joined
// with the first underscore suffix.
func ParseFileName(name string, modePatterns []string) FileInfo {
	name = filepath.Base(name)
	fi := FileInfo{Name: name, Mode: detectMode(name, modePatterns)}

	head, tail, hasTail := strings.Cut(stem(name), "_")
	if hasTail {
		tail, _, _ = strings.Cut(tail, "_")
	}
	parts := strings.Split(head, "-")

	hostSegments := 3
	if strings.Contains(parts[0], ".") {
		hostSegments = 2
	}
	if len(parts) < hostSegments+2 {
		fi.BatchKey = stem(name)
		return fi
	}
	fi.Host = strings.Join(parts[:hostSegments], "-")
	fi.Channel = strings.Join(parts[hostSegments:hostSegments+2], "-")

	batch := strings.Join(parts[hostSegments+2:], "-")
	if hasTail && tail != "" {
		if batch != "" {
			batch += "-"
		}
		batch += tail
	}
	if batch == "" {
		batch = stem(name)
	}
	fi.BatchKey = batch
	return fi
}

func detectMode(name string, patterns []string) string {
	for _, p := range patterns {
		if p != "" && strings.Contains(name, p) {
			return p
		}
	}
	return ""
}

// stem drops the extension and any copy suffix.
func stem(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSpace(copySuffix.ReplaceAllString(name, ""))
}
