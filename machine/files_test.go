package machine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/statechart"
)

func TestUploadTurnFilePatchesTheTurn(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()
	waitForTurns(h, 1)

	h.send(machine.IDFiles, machine.EvUploadTurnFile, machine.UploadFilePayload{
		TurnID:   h.turnID,
		Filename: "analisis.pdf",
		Data:     []byte("%PDF-1.4"),
	})

	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		if !ok {
			return false
		}
		for _, turn := range c.Turns {
			if turn.ID == h.turnID {
				return turn.FileURL != ""
			}
		}
		return false
	})
	turn, ok := h.turnByID(h.turnID)
	require.True(t, ok)
	assert.Contains(t, turn.FileURL, "analisis.pdf")
	assert.Equal(t, turn.FileURL, snapCtx[machine.FilesContext](t, h.bus, machine.IDFiles).LastURL)
	assert.Equal(t, 1, h.backend.Calls("Upload"))
}

func TestDeleteTurnFileClearsTheAttachment(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()
	waitForTurns(h, 1)

	h.send(machine.IDFiles, machine.EvUploadTurnFile, machine.UploadFilePayload{
		TurnID:   h.turnID,
		Filename: "analisis.pdf",
		Data:     []byte("%PDF-1.4"),
	})
	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && len(c.Turns) == 1 && c.Turns[0].FileURL != ""
	})

	h.send(machine.IDFiles, machine.EvDeleteTurnFile, machine.DeleteFilePayload{TurnID: h.turnID})

	h.wait(machine.IDTurn, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](s)
		return ok && len(c.Turns) == 1 && c.Turns[0].FileURL == ""
	})
	assert.Empty(t, snapCtx[machine.FilesContext](t, h.bus, machine.IDFiles).LastURL)
}

func TestUploadWithoutSessionIsDropped(t *testing.T) {
	h := newHarness(t, machine.Options{})

	h.send(machine.IDFiles, machine.EvUploadTurnFile, machine.UploadFilePayload{
		TurnID:   h.turnID,
		Filename: "analisis.pdf",
	})
	assert.Equal(t, "idle", h.bus.GetSnapshot(machine.IDFiles).StateValue["files"])
	assert.Zero(t, h.backend.Calls("Upload"))
}

func TestUploadToUnknownTurnReportsError(t *testing.T) {
	h := newHarness(t, machine.Options{})
	h.loginPatient()

	h.send(machine.IDFiles, machine.EvUploadTurnFile, machine.UploadFilePayload{
		TurnID:   "turn-999",
		Filename: "analisis.pdf",
	})

	h.wait(machine.IDFiles, func(s statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.FilesContext](s)
		return ok && s.StateValue["files"] == "idle" && c.Error != ""
	})
	assert.Empty(t, snapCtx[machine.FilesContext](t, h.bus, machine.IDFiles).LastURL)
}
