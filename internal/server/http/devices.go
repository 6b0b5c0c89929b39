package httpserver

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) createDevice(c *fiber.Ctx) error {
	var req deviceRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	d, err := req.toModel()
	if err != nil {
		return err
	}
	if err := s.devices.Create(c.UserContext(), d); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toDeviceResponse(d))
}

func (s *Server) getDevice(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	d, err := s.devices.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(toDeviceResponse(d))
}

// updateDevice rewrites device fields. An absent configured flag preserves
// the stored value instead of resetting it.
func (s *Server) updateDevice(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req deviceRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	d, err := req.toModel()
	if err != nil {
		return err
	}
	d.ID = id
	if req.Configured == nil {
		cur, err := s.devices.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		d.Configured = cur.Configured
	}
	if err := s.devices.Update(c.UserContext(), d); err != nil {
		return err
	}
	return c.JSON(toDeviceResponse(d))
}

func (s *Server) deleteDevice(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.devices.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listUserDevices(c *fiber.Ctx) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ds, err := s.devices.ListForUser(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make([]deviceResponse, len(ds))
	for i := range ds {
		out[i] = toDeviceResponse(&ds[i])
	}
	return c.JSON(out)
}
