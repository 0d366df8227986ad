// Package grpcstore serves a storage.RefStore over gRPC and provides the
// matching client, so a router journal can live on another host.
package grpcstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/facetrouter/cidutil"
	"xdao.co/facetrouter/codec"
	"xdao.co/facetrouter/storage"
)

type refArgs struct {
	_    struct{} `cbor:",toarray"`
	Name string
	CID  string
}

// Server exposes a storage.RefStore over the BlockStore service.
type Server struct {
	UnimplementedBlockStoreServer
	Store storage.RefStore
}

func (s *Server) ready() error {
	if s == nil || s.Store == nil {
		return status.Error(codes.FailedPrecondition, "missing store")
	}
	return nil
}

func parseCID(v string) (cid.Cid, error) {
	id, err := cidutil.Parse(v)
	if err != nil {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	b := in.GetValue()
	id, err := s.Store.Put(ctx, b)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := parseCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	id, err := parseCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	ok, err := s.Store.Has(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *Server) SetRef(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var args refArgs
	if err := codec.Unmarshal(in.GetValue(), &args); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed SetRef request")
	}
	if err := storage.CheckRefName(args.Name); err != nil {
		return nil, toStatus(err)
	}
	id, err := parseCID(args.CID)
	if err != nil {
		return nil, err
	}
	if err := s.Store.SetRef(ctx, args.Name, id); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(true), nil
}

func (s *Server) Ref(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	name := in.GetValue()
	if err := storage.CheckRefName(name); err != nil {
		return nil, toStatus(err)
	}
	id, err := s.Store.Ref(ctx, name)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(id.String()), nil
}
