package harvester

import (
	"path/filepath"
	"regexp"
)

// warcTimestampRe matches the -YYYYMMDDhhmmssfff- timestamp segment
// github.com/CorentinB/warc (and warcprox before it) embeds in WARC
// filenames, mirroring sfmutils/harvester.py's _path_for_warc regex.
var warcTimestampRe = regexp.MustCompile(`-(\d{4})(\d{2})(\d{2})(\d{2})\d{7}-`)

// datedPathForWARC returns the collection-relative directory a WARC file
// should live under once moved out of the temp capture directory: one level
// per year/month/day/hour, taken from the first 10 digits of its embedded
// timestamp. Files whose name does not carry a recognizable timestamp are
// placed directly under root.
func datedPathForWARC(root, filename string) string {
	m := warcTimestampRe.FindStringSubmatch(filename)
	if m == nil {
		return filepath.Join(root, filename)
	}
	year, month, day, hour := m[1], m[2], m[3], m[4]
	return filepath.Join(root, year, month, day, hour, filename)
}
