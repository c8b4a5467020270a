package machine

import (
	"fmt"
	"io"

	"github.com/medturn/portal/pkg/plantuml"
)

// Diagram writes the PlantUML state diagram of one machine. The definition is
// built without dependencies; guards and effects are never executed.
func Diagram(w io.Writer, id string) error {
	switch id {
	case IDAuth:
		return plantuml.Generate(w, (&authBuilder{}).machine())
	case IDUI:
		return plantuml.Generate(w, (&uiBuilder{}).machine())
	case IDData:
		return plantuml.Generate(w, (&dataBuilder{}).machine())
	case IDTurn:
		return plantuml.Generate(w, (&turnBuilder{}).machine())
	case IDDoctor:
		return plantuml.Generate(w, (&doctorBuilder{}).machine())
	case IDHistory:
		return plantuml.Generate(w, (&historyBuilder{}).machine())
	case IDNotification:
		return plantuml.Generate(w, (&notificationBuilder{}).machine())
	case IDProfile:
		return plantuml.Generate(w, (&profileBuilder{}).machine())
	case IDFiles:
		return plantuml.Generate(w, (&filesBuilder{}).machine())
	}
	return fmt.Errorf("unknown machine %q", id)
}
