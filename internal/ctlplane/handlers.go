package ctlplane

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/wasmcloud/wasmcloud-host/internal/types"
)

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

func (s *Server) handleScale(ctx context.Context, msg *nats.Msg) Response {
	req, err := decode[ScaleRequest](msg.Data)
	if err != nil {
		return Fail("malformed scale request: " + err.Error())
	}
	if err := s.host.Scale(ctx, req); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleUpdate(ctx context.Context, msg *nats.Msg) Response {
	req, err := decode[ScaleRequest](msg.Data)
	if err != nil {
		return Fail("malformed update request: " + err.Error())
	}
	if err := s.host.Update(ctx, req); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleStartProvider(ctx context.Context, msg *nats.Msg) Response {
	req, err := decode[StartProviderRequest](msg.Data)
	if err != nil {
		return Fail("malformed start_provider request: " + err.Error())
	}
	if err := s.host.StartProvider(ctx, req); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleStopProvider(ctx context.Context, msg *nats.Msg) Response {
	req, err := decode[StopProviderRequest](msg.Data)
	if err != nil {
		return Fail("malformed stop_provider request: " + err.Error())
	}
	if err := s.host.StopProvider(ctx, req); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleStopHost(ctx context.Context, _ *nats.Msg) Response {
	if err := s.host.StopHost(ctx); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleInventory(_ context.Context, _ *nats.Msg) Response {
	return Ok(s.host.Inventory())
}

func (s *Server) handleHostGet(_ context.Context, _ *nats.Msg) Response {
	return Ok(s.host.Summary())
}

func (s *Server) handleLinkGet(_ context.Context, _ *nats.Msg) Response {
	links, err := s.host.Links()
	if err != nil {
		return Fail(err.Error())
	}
	return Ok(links)
}

func (s *Server) handleLinkPut(ctx context.Context, msg *nats.Msg) Response {
	link, err := decode[types.Link](msg.Data)
	if err != nil {
		return Fail("malformed link: " + err.Error())
	}
	if err := s.host.PutLink(ctx, link); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleLinkDel(ctx context.Context, msg *nats.Msg) Response {
	key, err := decode[types.LinkKey](msg.Data)
	if err != nil {
		return Fail("malformed link key: " + err.Error())
	}
	if err := s.host.DeleteLink(ctx, key); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleConfigGet(ctx context.Context, msg *nats.Msg) Response {
	name, err := decode[string](msg.Data)
	if err != nil {
		return Fail("malformed config name: " + err.Error())
	}
	cfg, found, err := s.host.GetConfig(ctx, name)
	if err != nil {
		return Fail(err.Error())
	}
	if !found {
		return Fail("config not found: " + name)
	}
	return Ok(cfg)
}

func (s *Server) handleConfigPut(ctx context.Context, msg *nats.Msg) Response {
	cfg, err := decode[types.ConfigRecord](msg.Data)
	if err != nil {
		return Fail("malformed config record: " + err.Error())
	}
	if err := s.host.PutConfig(ctx, cfg); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleConfigDel(ctx context.Context, msg *nats.Msg) Response {
	name, err := decode[string](msg.Data)
	if err != nil {
		return Fail("malformed config name: " + err.Error())
	}
	if err := s.host.DeleteConfig(ctx, name); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleLabelPut(ctx context.Context, msg *nats.Msg) Response {
	kv, err := decode[map[string]string](msg.Data)
	if err != nil {
		return Fail("malformed label: " + err.Error())
	}
	for k, v := range kv {
		if err := s.host.PutLabel(ctx, k, v); err != nil {
			return Fail(err.Error())
		}
	}
	return Ok(nil)
}

func (s *Server) handleLabelDel(ctx context.Context, msg *nats.Msg) Response {
	key, err := decode[string](msg.Data)
	if err != nil {
		return Fail("malformed label key: " + err.Error())
	}
	if err := s.host.DeleteLabel(ctx, key); err != nil {
		return Fail(err.Error())
	}
	return Ok(nil)
}

func (s *Server) handleClaimsGet(_ context.Context, _ *nats.Msg) Response {
	claims, err := s.host.Claims()
	if err != nil {
		return Fail(err.Error())
	}
	return Ok(claims)
}
