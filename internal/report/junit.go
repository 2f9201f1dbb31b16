// Package report reads JUnit-style XML test reports, the format the
// result-publishing step consumes (pytest --junitxml and friends).
package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"time"
)

// TestSuites is the <testsuites> document root. Some runners emit a bare
// <testsuite> root instead; ParseJUnit accepts both.
type TestSuites struct {
	XMLName xml.Name    `xml:"testsuites"`
	Suites  []TestSuite `xml:"testsuite"`
}

// TestSuite is one <testsuite> element. The XMLName pins the element name so
// the bare-root fallback in ParseJUnit rejects foreign XML (an HTML error
// page is not an empty passing report).
type TestSuite struct {
	XMLName  xml.Name   `xml:"testsuite"`
	Name     string     `xml:"name,attr"`
	Tests    int        `xml:"tests,attr"`
	Failures int        `xml:"failures,attr"`
	Errors   int        `xml:"errors,attr"`
	Skipped  int        `xml:"skipped,attr"`
	Time     string     `xml:"time,attr"`
	Cases    []TestCase `xml:"testcase"`
}

// TestCase is one <testcase> element with its optional outcome child.
type TestCase struct {
	ClassName string   `xml:"classname,attr"`
	Name      string   `xml:"name,attr"`
	Time      string   `xml:"time,attr"`
	Failure   *Outcome `xml:"failure"`
	Error     *Outcome `xml:"error"`
	Skipped   *Outcome `xml:"skipped"`
}

// Outcome carries the message of a failure/error/skip child element.
type Outcome struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// Summary aggregates a parsed report.
type Summary struct {
	Title    string        `json:"title"`
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Errored  int           `json:"errored"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// HasFailures reports whether the run had failures or errors.
func (s Summary) HasFailures() bool {
	return s.Failed > 0 || s.Errored > 0
}

// ParseJUnit parses a JUnit XML document with either a <testsuites> or a
// single <testsuite> root.
func ParseJUnit(data []byte) (*TestSuites, error) {
	var suites TestSuites
	if err := xml.Unmarshal(data, &suites); err == nil {
		return &suites, nil
	}
	var single TestSuite
	if err := xml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse junit report: %w", err)
	}
	return &TestSuites{Suites: []TestSuite{single}}, nil
}

// ParseJUnitFile reads and parses a report file.
func ParseJUnitFile(path string) (*TestSuites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read junit report: %w", err)
	}
	return ParseJUnit(data)
}

// Summarize walks the test cases and counts outcomes. The per-case counts
// win over the suite attributes, which not every runner fills in.
func (ts *TestSuites) Summarize(title string) Summary {
	sum := Summary{Title: title}
	var seconds float64
	for _, suite := range ts.Suites {
		if t, err := strconv.ParseFloat(suite.Time, 64); err == nil {
			seconds += t
		}
		for _, c := range suite.Cases {
			sum.Total++
			switch {
			case c.Failure != nil:
				sum.Failed++
			case c.Error != nil:
				sum.Errored++
			case c.Skipped != nil:
				sum.Skipped++
			default:
				sum.Passed++
			}
		}
	}
	sum.Duration = time.Duration(seconds * float64(time.Second))
	return sum
}
