package imaging

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/pathlake/slideagent/cmn"
)

// Properties is the structured result of a properties read (spec.md
// §4.2.1).
type Properties struct {
	Width               int
	Height              int
	LevelCount          int
	PerLevelDimensions  [][2]int
	PerLevelDownsample  []float64
	AppMag              *float64
	MPP                 *float64
	Diagnostic          []byte // lz4-compressed raw stdout, for job diagnostics
}

// ReadProperties runs the primary properties reader; on failure it retries
// with the secondary header reader, which returns at least width/height
// (spec.md §4.2.1).
func (a *execAdapter) ReadProperties(ctx context.Context, path string) (*Properties, error) {
	out, err := a.run(ctx, "imaging.readProperties", a.cfg.PropertiesBin, path)
	if err == nil {
		props, perr := parseProperties(out)
		if perr == nil {
			raw := out
			if len(raw) > cmn.DiagnosticMaxRaw {
				raw = raw[:cmn.DiagnosticMaxRaw]
			}
			if diag, cerr := compressDiagnostic(raw); cerr == nil {
				props.Diagnostic = diag
			}
			return props, nil
		}
		err = perr
	}

	log.Warnf("primary properties reader failed (%v), falling back to header reader", err)
	out2, herr := a.run(ctx, "imaging.readProperties", a.cfg.HeaderBin, path)
	if herr != nil {
		return nil, herr
	}
	props, perr := parseProperties(out2)
	if perr != nil {
		return nil, cmn.NewError("imaging.readProperties", cmn.KindToolchain, "unparseable header output", perr)
	}
	return props, nil
}

// parseProperties parses "key = value" (optionally quoted) lines from
// toolchain stdout. Missing optional keys (appMag, mpp) yield nil, not an
// error; missing width/height is an error.
func parseProperties(out []byte) (*Properties, error) {
	kv := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		key := strings.TrimSpace(parts[0])
		val := stripQuotes(strings.TrimSpace(parts[1]))
		kv[key] = val
	}

	p := &Properties{}
	w, wok := kv["width"]
	h, hok := kv["height"]
	if !wok || !hok {
		return nil, cmn.NewError("imaging.parseProperties", cmn.KindToolchain, "missing width/height", nil)
	}
	var err error
	if p.Width, err = strconv.Atoi(w); err != nil {
		return nil, cmn.NewError("imaging.parseProperties", cmn.KindToolchain, "bad width", err)
	}
	if p.Height, err = strconv.Atoi(h); err != nil {
		return nil, cmn.NewError("imaging.parseProperties", cmn.KindToolchain, "bad height", err)
	}

	if lc, ok := kv["levelCount"]; ok {
		p.LevelCount, _ = strconv.Atoi(lc)
	}
	if dims, ok := kv["levelDimensions"]; ok {
		p.PerLevelDimensions = parseDimensionList(dims)
	}
	if ds, ok := kv["levelDownsamples"]; ok {
		p.PerLevelDownsample = parseFloatList(ds)
	}
	if v, ok := kv["appMag"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.AppMag = &f
		}
	}
	if v, ok := kv["mpp"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.MPP = &f
		}
	}
	return p, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// parseDimensionList parses "WxH,WxH,..." into pairs.
func parseDimensionList(s string) [][2]int {
	var out [][2]int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		wh := strings.SplitN(tok, "x", 2)
		if len(wh) != 2 {
			continue
		}
		w, err1 := strconv.Atoi(strings.TrimSpace(wh[0]))
		h, err2 := strconv.Atoi(strings.TrimSpace(wh[1]))
		if err1 == nil && err2 == nil {
			out = append(out, [2]int{w, h})
		}
	}
	return out
}

func parseFloatList(s string) []float64 {
	var out []float64
	for _, tok := range strings.Split(s, ",") {
		if f, err := strconv.ParseFloat(strings.TrimSpace(tok), 64); err == nil {
			out = append(out, f)
		}
	}
	return out
}
