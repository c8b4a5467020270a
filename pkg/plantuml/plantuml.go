// Package plantuml renders machine definitions as PlantUML state diagrams.
package plantuml

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/medturn/portal/statechart"
)

// Generate writes a state diagram of the machine to w. Parallel regions are
// rendered as concurrent compartments; invoking states carry an annotation
// and internal transitions appear as state lines instead of edges.
func Generate[C statechart.Cloneable[C]](w io.Writer, m *statechart.Machine[C]) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "@startuml %s\n", m.ID)
	for i := range m.Regions {
		if i > 0 {
			builder.WriteString("--\n")
		}
		generateRegion(&builder, &m.Regions[i])
	}
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(w, builder.String())
	return err
}

func generateRegion[C statechart.Cloneable[C]](builder *strings.Builder, region *statechart.Region[C]) {
	fmt.Fprintf(builder, "state %s {\n", sanitize(region.Name))
	fmt.Fprintf(builder, "  [*] --> %s\n", sanitize(region.Initial))

	names := make([]string, 0, len(region.States))
	for name := range region.States {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := region.States[name]
		id := sanitize(name)
		if state.Invoke != nil {
			fmt.Fprintf(builder, "  state %s : invoke\n", id)
		}
		for _, t := range state.Always {
			fmt.Fprintf(builder, "  %s --> %s : %s\n", id, sanitize(t.Target), label("always", t))
		}
		if state.Invoke != nil {
			for _, t := range state.Invoke.OnDone {
				generateTransition(builder, id, t, statechart.EventDone)
			}
			for _, t := range state.Invoke.OnError {
				generateTransition(builder, id, t, statechart.EventError)
			}
		}
		events := make([]string, 0, len(state.On))
		for eventType := range state.On {
			events = append(events, eventType)
		}
		sort.Strings(events)
		for _, eventType := range events {
			for _, t := range state.On[eventType] {
				generateTransition(builder, id, t, eventType)
			}
		}
	}
	fmt.Fprintln(builder, "}")
}

func generateTransition[C statechart.Cloneable[C]](builder *strings.Builder, source string, t statechart.Transition[C], eventType string) {
	if t.Target == "" {
		fmt.Fprintf(builder, "  state %s : %s\n", source, label(eventType, t))
		return
	}
	fmt.Fprintf(builder, "  %s --> %s : %s\n", source, sanitize(t.Target), label(eventType, t))
}

func label[C statechart.Cloneable[C]](eventType string, t statechart.Transition[C]) string {
	text := eventType
	if t.Guard != nil {
		text += " [guard]"
	}
	if len(t.Assign) > 0 {
		text += " / assign"
	}
	return text
}

func sanitize(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
}
