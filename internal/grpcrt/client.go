package grpcrt

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/dalgraph/internal/criteria"
	"github.com/hanpama/dalgraph/internal/dal"
	"github.com/hanpama/dalgraph/internal/entity"
)

// Client is a dal.Executor running every search and write on a remote
// executor.
type Client struct {
	reg       Registry
	transport Transport
	codec     *recordCodec
}

var _ dal.Executor = (*Client)(nil)

// NewClient calls the service described by reg for the entities of provider.
func NewClient(reg Registry, provider entity.Provider, transport Transport) *Client {
	return &Client{
		reg:       reg,
		transport: transport,
		codec:     &recordCodec{reg: reg, provider: provider},
	}
}

func (c *Client) Search(ctx context.Context, def *entity.Definition, crit *criteria.Criteria) (*dal.SearchResult, error) {
	md, err := c.method(def, OpSearch)
	if err != nil {
		return nil, err
	}
	if crit == nil {
		crit = criteria.New()
	}
	raw, err := EncodeCriteria(crit)
	if err != nil {
		return nil, err
	}
	req := dynamicpb.NewMessage(md.Input())
	req.Set(md.Input().Fields().ByName(FieldCriteria), protoreflect.ValueOfBytes(raw))

	res, err := c.call(ctx, md, req)
	if err != nil {
		return nil, err
	}
	fields := md.Output().Fields()
	records := res.Get(fields.ByName(FieldRecords)).List()
	out := &dal.SearchResult{
		Criteria: crit,
		Total:    int(res.Get(fields.ByName(FieldTotal)).Int()),
		Elements: make([]entity.Record, 0, records.Len()),
	}
	for i := 0; i < records.Len(); i++ {
		rec, err := c.codec.decode(def, records.Get(i).Message())
		if err != nil {
			return nil, err
		}
		out.Elements = append(out.Elements, rec)
	}
	out.Aggregations, err = DecodeAggregations(res.Get(fields.ByName(FieldAggregations)).Bytes())
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	return c.write(ctx, OpCreate, def, payloads)
}

func (c *Client) Update(ctx context.Context, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	return c.write(ctx, OpUpdate, def, payloads)
}

func (c *Client) Delete(ctx context.Context, def *entity.Definition, keys []map[string]any) ([]string, error) {
	return c.write(ctx, OpDelete, def, keys)
}

func (c *Client) write(ctx context.Context, op Operation, def *entity.Definition, payloads []map[string]any) ([]string, error) {
	md, err := c.method(def, op)
	if err != nil {
		return nil, err
	}
	req := dynamicpb.NewMessage(md.Input())
	list := req.Mutable(md.Input().Fields().ByName(FieldRecords)).List()
	for i, payload := range payloads {
		if err := c.codec.checkWritable(def, payload); err != nil {
			return nil, fmt.Errorf("/%d: %w", i, err)
		}
		el := list.NewElement()
		if err := c.codec.encode(def, payload, el.Message()); err != nil {
			return nil, fmt.Errorf("/%d: %w", i, err)
		}
		list.Append(el)
	}

	res, err := c.call(ctx, md, req)
	if err != nil {
		return nil, err
	}
	ids := res.Get(md.Output().Fields().ByName(FieldIDs)).List()
	out := make([]string, ids.Len())
	for i := range out {
		out[i] = ids.Get(i).String()
	}
	return out, nil
}

func (c *Client) method(def *entity.Definition, op Operation) (protoreflect.MethodDescriptor, error) {
	md := c.reg.Method(def.Name, op)
	if md == nil {
		return nil, fmt.Errorf("%w: %q has no remote %s method", entity.ErrUnknownEntity, def.Name, op)
	}
	return md, nil
}

func (c *Client) call(ctx context.Context, md protoreflect.MethodDescriptor, req protoreflect.Message) (protoreflect.Message, error) {
	res, err := c.transport.Call(ctx, md, req)
	if err != nil {
		return nil, fromStatus(err)
	}
	return res, nil
}
