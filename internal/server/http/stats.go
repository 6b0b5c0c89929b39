package httpserver

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// networkActivity counts devices and users with a recent handshake. The
// window query is whole seconds; the service default applies when absent.
func (s *Server) networkActivity(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	window := time.Duration(c.QueryInt("window")) * time.Second
	act, err := s.stats.NetworkActivity(c.UserContext(), id, window)
	if err != nil {
		return err
	}
	return c.JSON(activityResponse{
		NetworkID:     act.NetworkID,
		ActiveDevices: act.ActiveDevices,
		ActiveUsers:   act.ActiveUsers,
	})
}

// networkUserStats reports per-user transfer usage inside the network over
// the window.
func (s *Server) networkUserStats(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	from, to, err := statsWindow(c)
	if err != nil {
		return err
	}
	sums, err := s.stats.SummarizeNetworkUsers(c.UserContext(), id, from, to)
	if err != nil {
		return err
	}
	out := make([]userSummaryResponse, len(sums))
	for i, u := range sums {
		out[i] = userSummaryResponse{
			UserID:   u.UserID,
			Devices:  u.Devices,
			Upload:   u.Upload,
			Download: u.Download,
			From:     u.From,
			To:       u.To,
		}
	}
	return c.JSON(out)
}

// deviceStats reports the transfer usage of one device over the window.
func (s *Server) deviceStats(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	from, to, err := statsWindow(c)
	if err != nil {
		return err
	}
	sum, err := s.stats.SummarizeDevice(c.UserContext(), id, from, to)
	if err != nil {
		return err
	}
	return c.JSON(deviceSummaryResponse{
		DeviceID: sum.DeviceID,
		Upload:   sum.Upload,
		Download: sum.Download,
		From:     sum.From,
		To:       sum.To,
	})
}
