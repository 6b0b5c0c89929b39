package grpcserver

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dwongdev/defguard/internal/service"
)

// gatewayIdentity is the authenticated caller of one session: the network
// its token was issued for and the hostname it announced.
type gatewayIdentity struct {
	NetworkID int64
	Hostname  string
}

// authenticate verifies "authorization: Bearer <JWT>" (HS256, role=gateway,
// sub=network id) and picks up the announced hostname.
func (s *Server) authenticate(ctx context.Context) (gatewayIdentity, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return gatewayIdentity{}, status.Error(codes.Unauthenticated, "no auth")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return gatewayIdentity{}, status.Error(codes.Unauthenticated, "invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(claims); err != nil {
		return gatewayIdentity{}, status.Error(codes.Unauthenticated, "token expired or not valid yet")
	}

	if role, _ := claims["role"].(string); role != service.GatewayTokenRole {
		return gatewayIdentity{}, status.Error(codes.PermissionDenied, "not a gateway token")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return gatewayIdentity{}, status.Error(codes.Unauthenticated, "bad subject")
	}
	networkID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return gatewayIdentity{}, status.Error(codes.Unauthenticated, "bad subject")
	}

	return gatewayIdentity{NetworkID: networkID, Hostname: hostnameFromMD(ctx)}, nil
}

// hostnameFromMD reads the announced hostname, falling back to the peer
// address so every connection has a displayable origin.
func hostnameFromMD(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("hostname"); len(vals) > 0 && strings.TrimSpace(vals[0]) != "" {
			return strings.TrimSpace(vals[0])
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
