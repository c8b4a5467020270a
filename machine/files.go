package machine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/medturn/portal/orchestrator"
	"github.com/medturn/portal/service"
	"github.com/medturn/portal/statechart"
)

// FilesContext is the extended state of the files machine.
type FilesContext struct {
	AccessToken string
	LastURL     string
	Error       string
}

func (c FilesContext) Clone() FilesContext { return c }

// fileUpload is the settled value of a successful upload.
type fileUpload struct {
	TurnID string
	URL    string
}

// fileRemoval is the settled value of a successful delete.
type fileRemoval struct {
	TurnID string
}

type filesBuilder struct {
	bus *orchestrator.Bus
	svc service.Storage
	log zerolog.Logger
}

// NewFiles builds the files machine actor. It owns turn attachment uploads
// and deletions and tells the turn machine when an attachment URL changes.
func NewFiles(bus *orchestrator.Bus, svc service.Storage, log zerolog.Logger) *statechart.Actor[FilesContext] {
	b := &filesBuilder{bus: bus, svc: svc, log: log}
	return statechart.NewActor(b.machine(), log)
}

func (b *filesBuilder) machine() *statechart.Machine[FilesContext] {
	return &statechart.Machine[FilesContext]{
		ID:             IDFiles,
		Events:         filesEvents,
		InitialContext: func() FilesContext { return FilesContext{} },
		Regions: []statechart.Region[FilesContext]{{
			Name:    "files",
			Initial: "idle",
			States: map[string]*statechart.State[FilesContext]{
				"idle": {
					On: map[string][]statechart.Transition[FilesContext]{
						EvSetAuth:        {{Assign: []statechart.Reducer[FilesContext]{b.setAuth}}},
						EvUploadTurnFile: {{Target: "uploadingFile", Guard: b.hasToken}},
						EvDeleteTurnFile: {{Target: "deletingFile", Guard: b.hasToken}},
					},
				},
				"uploadingFile": {
					Invoke: &statechart.Invoke[FilesContext]{
						Src: b.upload,
						OnDone: []statechart.Transition[FilesContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[FilesContext]{b.storeUpload},
								Effects: []statechart.Effect[FilesContext]{
									b.patchTurnFile,
									snack[FilesContext](b.bus, "Archivo subido correctamente", SeveritySuccess),
								},
							},
						},
						OnError: []statechart.Transition[FilesContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[FilesContext]{b.storeError},
								Effects: []statechart.Effect[FilesContext]{snackFailure[FilesContext](b.bus)},
							},
						},
					},
				},
				"deletingFile": {
					Invoke: &statechart.Invoke[FilesContext]{
						Src: b.remove,
						OnDone: []statechart.Transition[FilesContext]{
							{
								Target: "idle",
								Assign: []statechart.Reducer[FilesContext]{b.clearUpload},
								Effects: []statechart.Effect[FilesContext]{
									b.removeTurnFile,
									snack[FilesContext](b.bus, "Archivo eliminado", SeverityInfo),
								},
							},
						},
						OnError: []statechart.Transition[FilesContext]{
							{
								Target:  "idle",
								Assign:  []statechart.Reducer[FilesContext]{b.storeError},
								Effects: []statechart.Effect[FilesContext]{snackFailure[FilesContext](b.bus)},
							},
						},
					},
				},
			},
		}},
	}
}

func (b *filesBuilder) setAuth(c FilesContext, e statechart.Event) FilesContext {
	if p, ok := e.Data.(SetAuthPayload); ok {
		c.AccessToken = p.AccessToken
	}
	return c
}

func (b *filesBuilder) hasToken(c FilesContext, _ statechart.Event) bool {
	return c.AccessToken != ""
}

func (b *filesBuilder) upload(ctx context.Context, c FilesContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(UploadFilePayload)
	if !ok {
		return nil, errBadPayload
	}
	url, err := b.svc.Upload(ctx, c.AccessToken, p.TurnID, p.Filename, p.Data)
	if err != nil {
		return nil, err
	}
	return fileUpload{TurnID: p.TurnID, URL: url}, nil
}

func (b *filesBuilder) remove(ctx context.Context, c FilesContext, e statechart.Event) (any, error) {
	p, ok := e.Data.(DeleteFilePayload)
	if !ok {
		return nil, errBadPayload
	}
	if err := b.svc.Delete(ctx, c.AccessToken, p.TurnID); err != nil {
		return nil, err
	}
	return fileRemoval{TurnID: p.TurnID}, nil
}

func (b *filesBuilder) storeUpload(c FilesContext, e statechart.Event) FilesContext {
	if up, ok := e.Data.(fileUpload); ok {
		c.LastURL = up.URL
		c.Error = ""
	}
	return c
}

func (b *filesBuilder) clearUpload(c FilesContext, _ statechart.Event) FilesContext {
	c.LastURL = ""
	c.Error = ""
	return c
}

func (b *filesBuilder) storeError(c FilesContext, e statechart.Event) FilesContext {
	if err, ok := e.Data.(error); ok && err != nil {
		c.Error = err.Error()
	}
	return c
}

func (b *filesBuilder) patchTurnFile(_ FilesContext, e statechart.Event) {
	up, ok := e.Data.(fileUpload)
	if !ok {
		return
	}
	b.bus.SendToMachine(context.Background(), IDTurn, statechart.Event{
		Type: EvUpdateTurnFile,
		Data: TurnFilePayload{TurnID: up.TurnID, URL: up.URL},
	})
}

func (b *filesBuilder) removeTurnFile(_ FilesContext, e statechart.Event) {
	rm, ok := e.Data.(fileRemoval)
	if !ok {
		return
	}
	b.bus.SendToMachine(context.Background(), IDTurn, statechart.Event{
		Type: EvRemoveTurnFile,
		Data: TurnFilePayload{TurnID: rm.TurnID, URL: ""},
	})
}
