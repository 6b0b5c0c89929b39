package httpserver

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dwongdev/defguard/internal/model"
)

// networkView decorates the network with its live gateway connections.
func (s *Server) networkView(n *model.Network) networkResponse {
	return toNetworkResponse(n, s.registry.Connected(n.ID), s.registry.Gateways(n.ID))
}

// createNetwork inserts a network; the server generates a keypair when the
// request does not carry one.
func (s *Server) createNetwork(c *fiber.Ctx) error {
	var req networkRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	n, err := req.toModel()
	if err != nil {
		return err
	}
	if err := s.networks.Create(c.UserContext(), n); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(s.networkView(n))
}

func (s *Server) listNetworks(c *fiber.Ctx) error {
	ns, err := s.networks.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]networkResponse, len(ns))
	for i := range ns {
		out[i] = s.networkView(&ns[i])
	}
	return c.JSON(out)
}

func (s *Server) getNetwork(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	n, err := s.networks.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(s.networkView(n))
}

func (s *Server) updateNetwork(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req networkRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	n, err := req.toModel()
	if err != nil {
		return err
	}
	n.ID = id
	if err := s.networks.Update(c.UserContext(), n); err != nil {
		return err
	}
	return c.JSON(s.networkView(n))
}

func (s *Server) deleteNetwork(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.networks.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// issueGatewayToken signs a connection token gateways of this network present
// when opening their session.
func (s *Server) issueGatewayToken(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	tok, err := s.networks.IssueGatewayToken(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(tokenResponse{Token: tok})
}

// listNetworkDevices returns the memberships of a network joined with their
// devices. ?authorized=true narrows to the authorized set.
func (s *Server) listNetworkDevices(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ms, err := s.memberships.ListByNetwork(c.UserContext(), id)
	if err != nil {
		return err
	}
	onlyAuthorized := c.QueryBool("authorized")
	out := make([]networkDeviceResponse, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		if onlyAuthorized && !m.IsAuthorized {
			continue
		}
		d, err := s.devices.Get(c.UserContext(), m.DeviceID)
		if err != nil {
			return err
		}
		out = append(out, toNetworkDeviceResponse(m, d))
	}
	return c.JSON(out)
}

// deviceConfig renders the WireGuard tunnel file of a device's membership in
// this network.
func (s *Server) deviceConfig(c *fiber.Ctx) error {
	networkID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	deviceID, err := pathID(c, "device_id")
	if err != nil {
		return err
	}
	m, err := s.memberships.GetByDeviceNetwork(c.UserContext(), deviceID, networkID)
	if err != nil {
		return err
	}
	cfg, err := s.memberships.ClientConfig(c.UserContext(), m.ID)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.SendString(cfg)
}
