package httpserver

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/dwongdev/defguard/internal/errs"
	"github.com/dwongdev/defguard/internal/gate"
	"github.com/dwongdev/defguard/internal/pending"
)

// beginAuthorize starts an authorization attempt and hands back the provider
// redirect. Public: the caller is acquiring a session, it cannot have one.
func (s *Server) beginAuthorize(c *fiber.Ctx) error {
	var req authorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	res, err := s.gate.Begin(c.UserContext(), gate.BeginInput{
		MembershipID: req.MembershipID,
		ClientID:     req.ClientID,
		Scope:        req.Scope,
		ResponseType: req.ResponseType,
		RedirectURI:  req.RedirectURI,
		State:        req.State,
		IP:           c.IP(),
	})
	if err != nil {
		return err
	}
	return c.JSON(authorizeResponse{Token: res.Token, AuthorizeURL: res.AuthorizeURL})
}

// consentCallback is the identity provider's redirect target. A finished
// attempt bounces the browser to the client's redirect_uri carrying the
// session token; an attempt parked on MFA reports where it stands so the
// client can answer the challenge.
func (s *Server) consentCallback(c *fiber.Ctx) error {
	res, err := s.gate.CompleteConsent(c.UserContext(), gate.ConsentInput{
		State:    c.Query("state"),
		Code:     c.Query("code"),
		ClientID: c.Query("client_id"),
		Scope:    c.Query("scope"),
		IP:       c.IP(),
	})
	if err != nil {
		return err
	}
	if res.Status == pending.StatusAuthorized {
		loc, err := clientRedirect(res.RedirectURI, res.State, res.SessionToken)
		if err != nil {
			return err
		}
		return c.Redirect(loc, fiber.StatusFound)
	}
	return c.JSON(sessionResponse{
		Token:     res.Token,
		Status:    res.Status,
		MFAMethod: res.MFAMethod,
	})
}

// completeMFA answers the pending challenge. Success returns the session
// token directly: the client posted here itself, no browser redirect needed.
func (s *Server) completeMFA(c *fiber.Ctx) error {
	var req mfaRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	res, err := s.gate.CompleteMFA(c.UserContext(), gate.MFAInput{
		Token:     c.Params("token"),
		Assertion: req.Assertion,
		IP:        c.IP(),
	})
	if err != nil {
		return err
	}
	return c.JSON(sessionResponse{
		Status:       pending.StatusAuthorized,
		SessionToken: res.SessionToken,
		ExpiresAt:    &res.ExpiresAt,
		RedirectURI:  res.RedirectURI,
		State:        res.State,
	})
}

// authorizeStatus is the attempt poll.
func (s *Server) authorizeStatus(c *fiber.Ctx) error {
	res, err := s.gate.Status(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// clientRedirect appends the state echo and session token to the client's
// loopback redirect target.
func clientRedirect(redirectURI, state, token string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: bad redirect_uri", errs.ErrValidation)
	}
	q := u.Query()
	q.Set("state", state)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
