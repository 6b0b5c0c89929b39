package httpserver

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/dwongdev/defguard/internal/errs"
)

// enroll adds a device to a network. The response carries the assigned
// addresses and preshared key; the membership starts unauthorized.
func (s *Server) enroll(c *fiber.Ctx) error {
	var req enrollRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if req.NetworkID <= 0 || req.DeviceID <= 0 {
		return fmt.Errorf("%w: network_id and device_id required", errs.ErrValidation)
	}
	m, err := s.memberships.Enroll(c.UserContext(), req.NetworkID, req.DeviceID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toMembershipResponse(m))
}

func (s *Server) getMembership(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	m, err := s.memberships.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toMembershipResponse(m))
}

// revokeMembership withdraws access. Revoking twice succeeds without effect.
func (s *Server) revokeMembership(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.memberships.Revoke(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) removeMembership(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.memberships.Remove(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
