// Salescope - Authorization-Scoped Device Sales Snapshot API
// Copyright 2026 Stormfield Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stormfield-io/salescope

package auth

// EffectiveAccess is the resolved device scope for a request.
type EffectiveAccess struct {
	// DeviceID is the single device the request may read.
	DeviceID string
	// IsAdmin reports whether the caller holds the admin group.
	IsAdmin bool
}

// Scoper resolves the effective device scope of an authenticated
// caller. Admins choose any device via a request parameter;
// non-admins are locked to the device bound to their token.
type Scoper struct {
	adminGroup string
}

// NewScoper creates a scoper that treats members of adminGroup as
// administrators.
func NewScoper(adminGroup string) *Scoper {
	return &Scoper{adminGroup: adminGroup}
}

// ResolveAccess determines which device the caller may read.
// Admins must supply requestedDevice; non-admins must carry a device
// claim, and any requestedDevice they send is ignored.
func (s *Scoper) ResolveAccess(claims *Claims, requestedDevice string) (EffectiveAccess, error) {
	if claims.InGroup(s.adminGroup) {
		if requestedDevice == "" {
			return EffectiveAccess{}, ErrMissingDeviceParam
		}
		return EffectiveAccess{DeviceID: requestedDevice, IsAdmin: true}, nil
	}

	if claims.DeviceID == "" {
		return EffectiveAccess{}, ErrNoDeviceAssigned
	}
	return EffectiveAccess{DeviceID: claims.DeviceID}, nil
}

// IsAdmin reports whether the claims carry the admin group.
func (s *Scoper) IsAdmin(claims *Claims) bool {
	return claims.InGroup(s.adminGroup)
}
