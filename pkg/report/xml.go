package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// xmlReport mirrors the PerfPublisher report document:
//
//	<report name="..." categ="...">
//	  <test name="..." executed="yes">
//	    <result>
//	      <success passed="yes" state="100"/>
//	      <metrics>
//	        <latency unit="ms" mesure="50" isRelevant="true"/>
//	      </metrics>
//	    </result>
//	  </test>
//	</report>
type xmlReport struct {
	XMLName  xml.Name  `xml:"report"`
	Name     string    `xml:"name,attr"`
	Category string    `xml:"categ,attr"`
	Tests    []xmlTest `xml:"test"`
}

type xmlTest struct {
	Name     string    `xml:"name,attr"`
	Executed string    `xml:"executed,attr"`
	Result   xmlResult `xml:"result"`
}

type xmlResult struct {
	Success struct {
		Passed string `xml:"passed,attr"`
	} `xml:"success"`
	Metrics struct {
		Items []xmlMetric `xml:",any"`
	} `xml:"metrics"`
}

// xmlMetric is any child of <metrics>; the element name is the metric name.
type xmlMetric struct {
	XMLName  xml.Name
	Unit     string `xml:"unit,attr"`
	Measure  string `xml:"mesure,attr"`
	Relevant string `xml:"isRelevant,attr"`
}

// Parse reads a PerfPublisher XML report from r.
func Parse(r io.Reader) (*Report, error) {
	var doc xmlReport
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("report: decode xml: %w", err)
	}

	rep := &Report{
		Name:     doc.Name,
		Category: doc.Category,
		Tests:    make([]*Test, 0, len(doc.Tests)),
	}

	for i, xt := range doc.Tests {
		t := NewTest(xt.Name)

		executed, err := parseFlag(xt.Executed)
		if err != nil {
			return nil, fmt.Errorf("report: test %d (%q) executed: %w", i, xt.Name, err)
		}
		t.Executed = executed

		// An absent <success> element leaves Successful false.
		successful, err := parseFlag(xt.Result.Success.Passed)
		if err != nil {
			return nil, fmt.Errorf("report: test %d (%q) passed: %w", i, xt.Name, err)
		}
		t.Successful = successful

		for _, xm := range xt.Result.Metrics.Items {
			m, err := xm.metric()
			if err != nil {
				return nil, fmt.Errorf("report: test %q metric %q: %w", xt.Name, xm.XMLName.Local, err)
			}
			t.SetMetric(xm.XMLName.Local, m)
		}

		rep.AddTest(t)
	}

	return rep, nil
}

// ParseFile opens and parses the report at path.
func ParseFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	defer f.Close()

	rep, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

func (xm xmlMetric) metric() (Metric, error) {
	var m Metric
	m.Unit = xm.Unit

	if s := strings.TrimSpace(xm.Measure); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Metric{}, fmt.Errorf("invalid mesure %q: %w", xm.Measure, err)
		}
		m.Measure = v
	}

	relevant, err := parseFlag(xm.Relevant)
	if err != nil {
		return Metric{}, fmt.Errorf("isRelevant: %w", err)
	}
	m.Relevant = relevant

	return m, nil
}

// parseFlag accepts yes/no, true/false and 1/0 in any case. Empty is false.
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return false, nil
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
