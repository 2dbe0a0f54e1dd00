package harness

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/odatamongo/internal/adapter"
	"github.com/roach88/odatamongo/internal/query"
)

// frontend stands in for the protocol layer: the adapter registers its
// verbs on it and steps are dispatched through the registered handlers.
type frontend struct {
	query  adapter.QueryHandler
	insert adapter.InsertHandler
	update adapter.UpdateHandler
	remove adapter.RemoveHandler
}

func (f *frontend) OnQuery(h adapter.QueryHandler) adapter.Registrar {
	f.query = h
	return f
}

func (f *frontend) OnInsert(h adapter.InsertHandler) adapter.Registrar {
	f.insert = h
	return f
}

func (f *frontend) OnUpdate(h adapter.UpdateHandler) adapter.Registrar {
	f.update = h
	return f
}

func (f *frontend) OnRemove(h adapter.RemoveHandler) adapter.Registrar {
	f.remove = h
	return f
}

// request is a step's decoded input.
type request struct {
	verb       string
	collection string
	descriptor *query.Descriptor
	doc        bson.M
	filter     bson.M
	update     bson.M
}

// decodeRequest decodes the documents the step's verb takes.
func decodeRequest(step *Step) (*request, error) {
	req := &request{verb: step.Verb, collection: step.Collection}

	var err error
	switch step.Verb {
	case adapter.VerbQuery:
		var data []byte
		if data, err = nodeJSON(step.Query); err == nil {
			req.descriptor, err = query.ParseDescriptor(data)
		}
	case adapter.VerbInsert:
		req.doc, err = nodeDocument(step.Doc)
	case adapter.VerbUpdate:
		if req.filter, err = nodeDocument(step.Filter); err == nil {
			req.update, err = nodeDocument(step.Update)
		}
	case adapter.VerbRemove:
		req.filter, err = nodeDocument(step.Filter)
	default:
		err = fmt.Errorf("unknown verb %q", step.Verb)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// serve runs req through the handler registered for its verb and returns
// the result in trace form.
func (f *frontend) serve(ctx context.Context, req *request) (any, error) {
	switch req.verb {
	case adapter.VerbQuery:
		res, err := f.query(ctx, req.collection, req.descriptor)
		if err != nil {
			return nil, err
		}
		return res.Shape(), nil

	case adapter.VerbInsert:
		doc, err := f.insert(ctx, req.collection, req.doc)
		if err != nil {
			return nil, err
		}
		return doc, nil

	case adapter.VerbUpdate:
		matched, err := f.update(ctx, req.collection, req.filter, req.update)
		if err != nil {
			return nil, err
		}
		return bson.M{"matched": matched}, nil

	default:
		res, err := f.remove(ctx, req.collection, req.filter)
		if err != nil {
			return nil, err
		}
		return bson.M{"deletedCount": res.DeletedCount, "acknowledged": res.Acknowledged}, nil
	}
}
