package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medturn/portal/machine"
	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/service/fake"
	"github.com/medturn/portal/statechart"
)

const waitTimeout = 5 * time.Second

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted patient and doctor session against the fake backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			backend := fake.NewBackend()
			backend.Latency = cfg.FakeLatency
			doctorID := backend.SeedUser("Dra. García", "garcia@portal.test", "medico123", service.RoleDoctor)
			patientID := backend.SeedUser("Juan Pérez", "juan@portal.test", "paciente123", service.RolePatient)
			turnID := backend.SeedTurn(service.Turn{
				PatientID: patientID,
				DoctorID:  doctorID,
				Date:      "2026-09-07",
				Time:      "10:00",
			})
			backend.SeedNotification(patientID, "Recuerda completar tu perfil")

			ctx := cmd.Context()
			bus, err := machine.Wire(ctx, machine.Services{
				Auth:          backend,
				Sessions:      &fake.SessionStore{},
				Data:          backend,
				Turns:         backend,
				Doctors:       backend,
				Histories:     backend,
				Notifications: fake.NotificationsAPI{Backend: backend},
				Profiles:      fake.ProfilesAPI{Backend: backend},
				Storage:       backend,
			}, machine.Options{SnackbarAutoDismiss: cfg.SnackbarAutoDismiss}, log)
			if err != nil {
				return err
			}

			s := session{ctx: ctx, bus: bus, log: log}
			if err := s.patientFlow(turnID); err != nil {
				return err
			}
			if err := s.doctorFlow(patientID, turnID); err != nil {
				return err
			}
			log.Info().Msg("simulation finished")
			return nil
		},
	}
}

type session struct {
	ctx context.Context
	bus *orchestrator.Bus
	log zerolog.Logger
}

func (s *session) patientFlow(turnID string) error {
	s.log.Info().Msg("patient signs in")
	s.login("juan@portal.test", "paciente123")
	if err := s.waitForState(machine.IDAuth, "auth", "authenticated"); err != nil {
		return err
	}
	if err := s.waitFor(machine.IDTurn, func(snap statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](snap)
		return ok && len(c.Turns) > 0
	}); err != nil {
		return err
	}

	s.log.Info().Msg("patient reserves a second turn")
	s.bus.SendToMachine(s.ctx, machine.IDTurn, statechart.Event{
		Type: machine.EvReserveTurn,
		Data: machine.ReserveTurnPayload{Turn: service.Turn{
			Date: "2026-09-14",
			Time: "11:30",
		}},
	})
	if err := s.waitFor(machine.IDTurn, func(snap statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](snap)
		return ok && len(c.Turns) >= 2
	}); err != nil {
		return err
	}

	s.log.Info().Msg("patient attaches a study to the seeded turn")
	s.bus.SendToMachine(s.ctx, machine.IDFiles, statechart.Event{
		Type: machine.EvUploadTurnFile,
		Data: machine.UploadFilePayload{TurnID: turnID, Filename: "analisis.pdf", Data: []byte("pdf")},
	})
	if err := s.waitFor(machine.IDTurn, func(snap statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](snap)
		if !ok {
			return false
		}
		for _, t := range c.Turns {
			if t.ID == turnID && t.FileURL != "" {
				return true
			}
		}
		return false
	}); err != nil {
		return err
	}

	s.log.Info().Msg("patient logs out")
	s.bus.Send(s.ctx, statechart.Event{Type: machine.EvLogout})
	return s.waitForState(machine.IDAuth, "auth", "idle")
}

func (s *session) doctorFlow(patientID, turnID string) error {
	s.log.Info().Msg("doctor signs in")
	s.login("garcia@portal.test", "medico123")
	if err := s.waitForState(machine.IDAuth, "auth", "authenticated"); err != nil {
		return err
	}
	if err := s.waitFor(machine.IDDoctor, func(snap statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.DoctorContext](snap)
		return ok && len(c.Patients) > 0
	}); err != nil {
		return err
	}

	s.log.Info().Msg("doctor approves the pending turn through the confirmation dialog")
	s.bus.Send(s.ctx, statechart.Event{
		Type: machine.EvOpenConfirmationDialog,
		Data: machine.DialogPayload{Action: machine.DialogApprove, RequestID: turnID},
	})
	s.bus.Send(s.ctx, statechart.Event{Type: machine.EvConfirmDialog})
	if err := s.waitFor(machine.IDTurn, func(snap statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.TurnContext](snap)
		if !ok {
			return false
		}
		for _, t := range c.Turns {
			if t.ID == turnID && t.Status == service.TurnApproved {
				return true
			}
		}
		return false
	}); err != nil {
		return err
	}

	s.log.Info().Msg("doctor records a history entry for the patient")
	s.bus.SendToMachine(s.ctx, machine.IDDoctor, statechart.Event{
		Type: machine.EvSelectPatient,
		Data: machine.SelectPatientPayload{Patient: service.Patient{ID: patientID, Name: "Juan Pérez"}},
	})
	s.bus.SendToMachine(s.ctx, machine.IDDoctor, statechart.Event{
		Type: machine.EvUpdateHistoryDraft,
		Data: machine.HistoryDraftPayload{Description: "Control anual sin novedades"},
	})
	s.bus.SendToMachine(s.ctx, machine.IDDoctor, statechart.Event{Type: machine.EvSaveHistory})
	if err := s.waitFor(machine.IDHistory, func(snap statechart.Snapshot) bool {
		c, ok := statechart.SnapshotContext[machine.HistoryContext](snap)
		return ok && len(c.Entries) > 0
	}); err != nil {
		return err
	}

	s.log.Info().Msg("doctor updates the weekly availability")
	s.bus.SendToMachine(s.ctx, machine.IDDoctor, statechart.Event{
		Type: machine.EvEditAvailability,
		Data: machine.EditAvailabilityPayload{Day: "Lunes", Slots: []string{"09:00", "09:30"}, Enabled: true},
	})
	s.bus.SendToMachine(s.ctx, machine.IDDoctor, statechart.Event{Type: machine.EvSaveAvailability})
	return s.waitForState(machine.IDDoctor, "availability", "idle")
}

func (s *session) login(email, password string) {
	s.bus.SendToMachine(s.ctx, machine.IDAuth, statechart.Event{
		Type: machine.EvUpdateForm,
		Data: machine.UpdateFormPayload{Key: "email", Value: email},
	})
	s.bus.SendToMachine(s.ctx, machine.IDAuth, statechart.Event{
		Type: machine.EvUpdateForm,
		Data: machine.UpdateFormPayload{Key: "password", Value: password},
	})
	s.bus.SendToMachine(s.ctx, machine.IDAuth, statechart.Event{Type: machine.EvSubmit})
}

// waitForState polls until the machine's region reaches the wanted state.
func (s *session) waitForState(id, region, want string) error {
	return s.waitFor(id, func(snap statechart.Snapshot) bool {
		return snap.StateValue[region] == want
	})
}

// waitFor polls the machine's snapshot until cond holds. Settlements arrive
// asynchronously, so scripted steps observe outcomes instead of channels.
func (s *session) waitFor(id string, cond func(statechart.Snapshot) bool) error {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond(s.bus.GetSnapshot(id)) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for machine %q", id)
}
