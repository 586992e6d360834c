// Package iam holds the identity side of tenantry: the shared error codes
// and claim names used by its sub-packages.
//
//   - iam/keys     RSA signing keys, rotation and the public JWKS
//   - iam/auth     JWT issuance and verification, bearer middleware, audit
//   - iam/client   registered OAuth relying parties
//   - iam/oauth    authorization code flow with pending state and consent
//   - iam/tenant   tenant registration and one-time activation links
//   - iam/user     tenant-scoped users, password login, root provisioning
//   - iam/secret   random codes and token hashing
//
// Each sub-package follows the same layout: the entity and its port in the
// package itself, services in <pkg>srv, storage in <pkg>infra and HTTP
// handlers in <pkg>api. iamcontainer wires them together.
package iam
