package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartdesk/internal/overlay"
)

type annotationIDInput struct {
	SessionID    string `path:"session_id"`
	Kind         string `path:"kind" enum:"line,signal,note,tpsl,shape"`
	AnnotationID string `path:"annotation_id"`
}

type snapshotOutput struct {
	Body overlay.Snapshot
}

func registerAnnotationHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-annotations", Method: http.MethodGet, Path: "/api/v1/sessions/{session_id}/annotations", Summary: "List the session's annotations", Tags: []string{"Annotations"}},
		func(ctx context.Context, input *sessionIDInput) (*snapshotOutput, error) {
			snap, err := svc.Annotations(input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &snapshotOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "replace-annotations", Method: http.MethodPut, Path: "/api/v1/sessions/{session_id}/annotations", Summary: "Replace all annotations of the session", Tags: []string{"Annotations"}},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			RawBody   []byte
		}) (*statusOutput, error) {
			var snap overlay.Snapshot
			if err := json.Unmarshal(input.RawBody, &snap); err != nil {
				return nil, huma.Error400BadRequest("invalid annotation set", err)
			}
			if err := svc.ReplaceAnnotations(ctx, input.SessionID, snap); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	type addOutput struct {
		Body struct {
			ID string `json:"id"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "add-annotation", Method: http.MethodPost, Path: "/api/v1/sessions/{session_id}/annotations/{kind}", Summary: "Add a fully specified annotation", Tags: []string{"Annotations"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			SessionID string `path:"session_id"`
			Kind      string `path:"kind" enum:"line,signal,note,tpsl,shape"`
			RawBody   []byte
		}) (*addOutput, error) {
			id, err := svc.AddAnnotation(ctx, input.SessionID, overlay.Kind(input.Kind), json.RawMessage(input.RawBody))
			if err != nil {
				return nil, mapErr(err)
			}
			out := &addOutput{}
			out.Body.ID = id
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "update-annotation-geometry", Method: http.MethodPatch, Path: "/api/v1/sessions/{session_id}/annotations/{kind}/{annotation_id}", Summary: "Move an annotation", Tags: []string{"Annotations"}},
		func(ctx context.Context, input *struct {
			SessionID    string `path:"session_id"`
			Kind         string `path:"kind" enum:"line,signal,note,tpsl,shape"`
			AnnotationID string `path:"annotation_id"`
			Body         overlay.GeometryPatch
		}) (*statusOutput, error) {
			if err := svc.UpdateGeometry(ctx, input.SessionID, overlay.Kind(input.Kind), input.AnnotationID, input.Body); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-annotation", Method: http.MethodDelete, Path: "/api/v1/sessions/{session_id}/annotations/{kind}/{annotation_id}", Summary: "Delete an annotation and its parts", Tags: []string{"Annotations"}},
		func(ctx context.Context, input *annotationIDInput) (*statusOutput, error) {
			if err := svc.DeleteAnnotation(ctx, input.SessionID, overlay.Kind(input.Kind), input.AnnotationID); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})
}

func registerRecordHandlers(api huma.API, svc Service) {
	type listRecordsOutput struct {
		Body struct {
			Symbols []string `json:"symbols"`
		}
	}

	huma.Register(api, huma.Operation{OperationID: "list-records", Method: http.MethodGet, Path: "/api/v1/records", Summary: "Symbols with saved annotations", Tags: []string{"Records"}},
		func(ctx context.Context, input *struct{}) (*listRecordsOutput, error) {
			syms, err := svc.Records(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listRecordsOutput{}
			out.Body.Symbols = syms
			return out, nil
		})

	type symbolInput struct {
		Symbol string `path:"symbol"`
	}

	huma.Register(api, huma.Operation{OperationID: "get-record", Method: http.MethodGet, Path: "/api/v1/records/{symbol}", Summary: "Saved annotations of a symbol", Tags: []string{"Records"}},
		func(ctx context.Context, input *symbolInput) (*snapshotOutput, error) {
			snap, err := svc.Record(ctx, input.Symbol)
			if err != nil {
				return nil, mapErr(err)
			}
			return &snapshotOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-record", Method: http.MethodDelete, Path: "/api/v1/records/{symbol}", Summary: "Delete the saved annotations of a symbol", Tags: []string{"Records"}},
		func(ctx context.Context, input *symbolInput) (*statusOutput, error) {
			if err := svc.DeleteRecord(ctx, input.Symbol); err != nil {
				return nil, mapErr(err)
			}
			return okStatus(), nil
		})
}
