// Package history implements the XML pinning-history codec of spec §6:
// save/load of a PinningHistory plus the environment, configuration,
// observed-process and monitor metadata recorded alongside it. Uses
// stdlib encoding/xml, following the teacher's own preference for
// encoding/json on its API types (internal/model) generalized to XML
// since no XML library appears anywhere in the example pack.
package history

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// Option is one <opt id="...">VALUE</opt> element.
type Option struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type xmlEnvironment struct {
	Host string `xml:"Host"`
	Date string `xml:"Date"`
	Time string `xml:"Time"`
}

type xmlConfiguration struct {
	Type    string   `xml:"type,attr"`
	Options []Option `xml:"opt"`
}

type xmlObservedProcess struct {
	Command         string `xml:"Command"`
	Trace           bool   `xml:"Trace"`
	CommChan        string `xml:"CommChan"`
	CommChanTimeout int    `xml:"CommChanTimeout"`
}

type xmlMonitor struct {
	Name    string   `xml:"name,attr"`
	Type    string   `xml:"type,attr"`
	Options []Option `xml:"opt"`
}

type xmlPerformanceMonitors struct {
	Monitors []xmlMonitor `xml:"Monitor"`
}

type xmlControlStrategy struct {
	Type    string   `xml:"type,attr"`
	Options []Option `xml:"opt"`
}

type xmlPinning struct {
	Sched string `xml:"sched,attr"`
	Value string `xml:",chardata"`
}

type xmlPhase struct {
	ID       int          `xml:"id,attr"`
	Pinnings []xmlPinning `xml:"Pinning"`
}

type xmlPinnings struct {
	Direction string     `xml:"direction,attr"`
	Phases    []xmlPhase `xml:"Phase"`
}

// Document is the root <XMLPinningHistory> element and every sibling
// section spec §6 names alongside the pinning history itself.
type Document struct {
	XMLName             xml.Name               `xml:"XMLPinningHistory"`
	Environment         xmlEnvironment         `xml:"Environment"`
	Configuration       xmlConfiguration       `xml:"Configuration"`
	ObservedProcess     xmlObservedProcess     `xml:"ObservedProcess"`
	PerformanceMonitors xmlPerformanceMonitors `xml:"PerformanceMonitors"`
	ControlStrategy     xmlControlStrategy     `xml:"ControlStrategy"`
	Pinnings            xmlPinnings            `xml:"Pinnings"`
}

// Metadata is the non-History content of a Document: everything a
// Watchdog records about the run that produced the history, passed in
// by the caller on Save and returned by Load.
type Metadata struct {
	Host                string
	Date                string
	Time                string
	ConfigurationType   string
	ConfigurationOpts   []Option
	Command             string
	Trace               bool
	CommChan            string
	CommChanTimeout     int
	Monitors            []xmlMonitor
	ControlStrategyType string
	ControlStrategyOpts []Option
}

// directionName/parseDirection round-trip a Direction through the
// <Pinnings direction="..."> attribute, since the XML schema otherwise
// has no field for it.
func directionName(d pinning.Direction) string {
	switch d {
	case pinning.Max:
		return "MAX"
	case pinning.Min:
		return "MIN"
	default:
		return "UNKNOWN"
	}
}

func parseDirection(s string) pinning.Direction {
	switch s {
	case "MAX":
		return pinning.Max
	case "MIN":
		return pinning.Min
	default:
		return pinning.Unknown
	}
}

// Save renders h and meta to path as spec §6 XML.
func Save(path string, h *pinning.History, coreCount int, meta Metadata) error {
	doc := Document{
		Environment: xmlEnvironment{Host: meta.Host, Date: meta.Date, Time: meta.Time},
		Configuration: xmlConfiguration{
			Type:    meta.ConfigurationType,
			Options: meta.ConfigurationOpts,
		},
		ObservedProcess: xmlObservedProcess{
			Command:         meta.Command,
			Trace:           meta.Trace,
			CommChan:        meta.CommChan,
			CommChanTimeout: meta.CommChanTimeout,
		},
		PerformanceMonitors: xmlPerformanceMonitors{Monitors: meta.Monitors},
		ControlStrategy: xmlControlStrategy{
			Type:    meta.ControlStrategyType,
			Options: meta.ControlStrategyOpts,
		},
	}

	doc.Pinnings.Direction = directionName(h.Direction)
	for _, phase := range h.Phases() {
		xp := xmlPhase{ID: phase}
		for _, r := range h.Entries(phase) {
			xp.Pinnings = append(xp.Pinnings, xmlPinning{
				Sched: r.Pinning.Encode(),
				Value: strconv.FormatFloat(r.Value, 'g', -1, 64),
			})
		}
		doc.Pinnings.Phases = append(doc.Pinnings.Phases, xp)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	out = append([]byte(xml.Header), out...)
	return os.WriteFile(path, out, 0644)
}

// Load reads path and reconstructs the History plus the Metadata saved
// alongside it. coreCount sizes each decoded Pinning. The optimisation
// direction is read back from the document itself.
func Load(path string, coreCount int) (*pinning.History, Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("read history: %w", err)
	}

	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, Metadata{}, fmt.Errorf("unmarshal history: %w", err)
	}

	h := pinning.NewHistory(parseDirection(doc.Pinnings.Direction))
	for _, xp := range doc.Pinnings.Phases {
		for _, xpin := range xp.Pinnings {
			p, err := decodePinning(xpin.Sched, coreCount)
			if err != nil {
				return nil, Metadata{}, fmt.Errorf("phase %d: %w", xp.ID, err)
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(xpin.Value), 64)
			if err != nil {
				return nil, Metadata{}, fmt.Errorf("phase %d: bad value %q: %w", xp.ID, xpin.Value, err)
			}
			h.Record(xp.ID, p, value)
		}
	}

	meta := Metadata{
		Host:                doc.Environment.Host,
		Date:                doc.Environment.Date,
		Time:                doc.Environment.Time,
		ConfigurationType:   doc.Configuration.Type,
		ConfigurationOpts:   doc.Configuration.Options,
		Command:             doc.ObservedProcess.Command,
		Trace:               doc.ObservedProcess.Trace,
		CommChan:            doc.ObservedProcess.CommChan,
		CommChanTimeout:     doc.ObservedProcess.CommChanTimeout,
		Monitors:            doc.PerformanceMonitors.Monitors,
		ControlStrategyType: doc.ControlStrategy.Type,
		ControlStrategyOpts: doc.ControlStrategy.Options,
	}
	return h, meta, nil
}

// decodePinning parses a "c0:c1:..." sched attribute into a Pinning of
// coreCount slots. The schema carries only the occupied core set, not
// the pid/tid that held it; each occupied slot is filled with a
// placeholder tid equal to its 1-based position in the list, so save/load
// round trips preserve occupancy (spec §8 property 6) without claiming
// to recover the original tid identity.
func decodePinning(sched string, coreCount int) (pinning.Pinning, error) {
	p := pinning.New(coreCount)
	sched = strings.TrimSpace(sched)
	if sched == "" {
		return p, nil
	}
	for i, tok := range strings.Split(sched, ":") {
		core, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return pinning.Pinning{}, fmt.Errorf("bad core token %q: %w", tok, err)
		}
		if core < 0 || core >= coreCount {
			return pinning.Pinning{}, fmt.Errorf("core %d out of range [0,%d)", core, coreCount)
		}
		p.Assign(core, 0, i+1)
	}
	return p, nil
}
