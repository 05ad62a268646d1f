package ingest

import "regexp"

// filenamePattern is spec.md §8's round-trip law for filename parsing:
// an accession prefix (AP/PA/IM), a 6-12 digit case number, an optional
// block/slide label (a letter plus optional digits), and an optional
// extension.
var filenamePattern = regexp.MustCompile(`^(AP|PA|IM)(\d{6,12})([A-Z]\d*)?(\.\w+)?$`)

// ParsedFilename holds the external identifiers recovered from a
// scanner/inbox file name, e.g. "PA000123A1.svs" -> caseBase "AP000123",
// label "A1", externalCaseId "pathoweb:AP000123".
type ParsedFilename struct {
	CaseBase       *string
	Label          *string
	ExternalCaseID *string
}

// ParseFilename matches the name against filenamePattern and, on a match,
// normalises PA to AP, defaults an empty label to "1", and derives
// externalCaseId as "pathoweb:" + caseBase. A name that doesn't match the
// pattern yields a zero-value (absent) result.
func ParseFilename(name string) ParsedFilename {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return ParsedFilename{}
	}

	prefix, digits, label := m[1], m[2], m[3]
	if prefix == "PA" {
		prefix = "AP"
	}
	caseBase := prefix + digits
	if label == "" {
		label = "1"
	}
	externalCaseID := "pathoweb:" + caseBase

	return ParsedFilename{
		CaseBase:       &caseBase,
		Label:          &label,
		ExternalCaseID: &externalCaseID,
	}
}
