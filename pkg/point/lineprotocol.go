package point

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Precision is the unit of the timestamp written at the end of a line.
type Precision string

// Supported precisions, named as in the InfluxDB write API.
const (
	Nanosecond  Precision = "ns"
	Microsecond Precision = "us"
	Millisecond Precision = "ms"
	Second      Precision = "s"
)

// ParsePrecision converts a precision name. Empty means Nanosecond.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ns", "n":
		return Nanosecond, nil
	case "us", "u":
		return Microsecond, nil
	case "ms":
		return Millisecond, nil
	case "s":
		return Second, nil
	default:
		return "", fmt.Errorf("unsupported precision %q (supported: ns, us, ms, s)", s)
	}
}

// Timestamp returns t as an integer count of precision units since the
// Unix epoch.
func (p Precision) Timestamp(t time.Time) int64 {
	switch p {
	case Microsecond:
		return t.UnixMicro()
	case Millisecond:
		return t.UnixMilli()
	case Second:
		return t.Unix()
	default:
		return t.UnixNano()
	}
}

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `, "\n", `\n`)
	keyEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `, "\n", `\n`)
	stringEscaper      = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// LineProtocol renders p as a single line without a trailing newline.
// Tags and fields are written in key order. Tags with an empty value and
// non-finite float fields are skipped. It returns "" when no field can be
// encoded. A zero Time omits the timestamp.
func (p Point) LineProtocol(precision Precision) string {
	fields := make([]Field, 0, len(p.Fields))
	for _, f := range p.Fields {
		if f.Value.kind == KindFloat && (math.IsNaN(f.Value.f) || math.IsInf(f.Value.f, 0)) {
			continue
		}
		if f.Value.kind == 0 {
			continue
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return ""
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

	tags := make([]Tag, 0, len(p.Tags))
	for _, t := range p.Tags {
		if t.Value == "" {
			continue
		}
		tags = append(tags, t)
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })

	var sb strings.Builder
	sb.WriteString(measurementEscaper.Replace(p.Measurement))
	for _, t := range tags {
		sb.WriteByte(',')
		sb.WriteString(keyEscaper.Replace(t.Key))
		sb.WriteByte('=')
		sb.WriteString(keyEscaper.Replace(t.Value))
	}

	sb.WriteByte(' ')
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(keyEscaper.Replace(f.Key))
		sb.WriteByte('=')
		sb.WriteString(f.Value.lineProtocol())
	}

	if !p.Time.IsZero() {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatInt(precision.Timestamp(p.Time), 10))
	}
	return sb.String()
}

// lineProtocol renders the value in its wire form.
func (v Value) lineProtocol() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10) + "i"
	case KindFloat:
		return formatFloat(v.f)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return `"` + stringEscaper.Replace(v.s) + `"`
	default:
		return ""
	}
}

// formatFloat writes f in plain decimal notation with at least one
// fractional digit, so 50 becomes "50.0".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Encode writes each point as one newline-terminated line. Points with
// nothing to encode are skipped.
func Encode(w io.Writer, points []Point, precision Precision) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		line := p.LineProtocol(precision)
		if line == "" {
			continue
		}
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
