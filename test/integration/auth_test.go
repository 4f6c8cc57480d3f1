// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/web"
)

type response struct {
	status int
	body   map[string]any
}

func request(method, path, bearer string, body any) response {
	GinkgoHelper()
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	out := response{status: rec.Code}
	if rec.Body.Len() > 0 {
		Expect(json.Unmarshal(rec.Body.Bytes(), &out.body)).To(Succeed())
	}
	return out
}

func setupAdmin() {
	GinkgoHelper()
	res := request(http.MethodPost, "/api/auth/setup-admin", "",
		map[string]string{"email": "admin@example.com", "password": "admin-pass-1", "name": "Admin"})
	Expect(res.status).To(Equal(http.StatusCreated))
}

func login(email, password string) string {
	GinkgoHelper()
	res := request(http.MethodPost, "/api/auth/login", "",
		map[string]string{"email": email, "password": password})
	Expect(res.status).To(Equal(http.StatusOK), "login body: %v", res.body)
	token, ok := res.body["token"].(string)
	Expect(ok).To(BeTrue())
	return token
}

var _ = Describe("Admin bootstrap", func() {
	It("creates exactly one admin", func() {
		res := request(http.MethodGet, "/api/auth/setup-admin", "", nil)
		Expect(res.body).To(HaveKeyWithValue("adminExists", false))

		setupAdmin()

		res = request(http.MethodGet, "/api/auth/setup-admin", "", nil)
		Expect(res.body).To(HaveKeyWithValue("adminExists", true))

		res = request(http.MethodPost, "/api/auth/setup-admin", "",
			map[string]string{"email": "second@example.com", "password": "admin-pass-2", "name": "Second"})
		Expect(res.status).To(Equal(http.StatusBadRequest))
		Expect(res.body).To(HaveKeyWithValue("message", auth.MsgAdminExists))
	})

	It("lets only one of many concurrent bootstraps win", func() {
		const attempts = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			exists  int
		)
		for i := range attempts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer GinkgoRecover()
				email := "admin" + string(rune('a'+i)) + "@example.com"
				_, err := env.service.CreateAdminUser(env.ctx, email, "admin-pass-1", "Admin")
				mu.Lock()
				defer mu.Unlock()
				switch auth.ErrorCode(err) {
				case "":
					Expect(err).NotTo(HaveOccurred())
					created++
				case auth.CodeAdminExists:
					exists++
				default:
					Fail("unexpected error: " + err.Error())
				}
			}(i)
		}
		wg.Wait()

		Expect(created).To(Equal(1))
		Expect(exists).To(Equal(attempts - 1))

		var admins int
		Expect(env.db.Pool().QueryRow(env.ctx,
			`SELECT count(*) FROM users WHERE role = 'admin'`).Scan(&admins)).To(Succeed())
		Expect(admins).To(Equal(1))
	})

	It("allows a new bootstrap once no admin remains", func() {
		setupAdmin()
		_, err := env.db.Pool().Exec(env.ctx, `UPDATE users SET role = 'user' WHERE role = 'admin'`)
		Expect(err).NotTo(HaveOccurred())

		res := request(http.MethodGet, "/api/auth/setup-admin", "", nil)
		Expect(res.body).To(HaveKeyWithValue("adminExists", false))

		res = request(http.MethodPost, "/api/auth/setup-admin", "",
			map[string]string{"email": "second@example.com", "password": "admin-pass-2", "name": "Second"})
		Expect(res.status).To(Equal(http.StatusCreated))
	})
})

var _ = Describe("Login and sessions", func() {
	BeforeEach(setupAdmin)

	It("authenticates, verifies and revokes on logout", func() {
		token := login("admin@example.com", "admin-pass-1")

		res := request(http.MethodPost, "/api/auth/verify", "", map[string]string{"token": token})
		Expect(res.status).To(Equal(http.StatusOK))

		res = request(http.MethodGet, "/api/auth/me", token, nil)
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body["user"]).To(HaveKeyWithValue("email", "admin@example.com"))
		Expect(res.body["user"]).NotTo(HaveKey("passwordHash"))

		res = request(http.MethodPost, "/api/auth/logout", token, nil)
		Expect(res.status).To(Equal(http.StatusOK))

		// The token is still cryptographically valid but its session is gone.
		res = request(http.MethodPost, "/api/auth/verify", "", map[string]string{"token": token})
		Expect(res.status).To(Equal(http.StatusUnauthorized))
		Expect(res.body).To(HaveKeyWithValue("message", auth.MsgInvalidSession))

		res = request(http.MethodPost, "/api/auth/logout", token, nil)
		Expect(res.status).To(Equal(http.StatusOK), "logout is idempotent")
	})

	It("gives unknown emails and wrong passwords the same answer", func() {
		wrong := request(http.MethodPost, "/api/auth/login", "",
			map[string]string{"email": "admin@example.com", "password": "nope"})
		unknown := request(http.MethodPost, "/api/auth/login", "",
			map[string]string{"email": "nobody@example.com", "password": "admin-pass-1"})

		Expect(wrong.status).To(Equal(http.StatusUnauthorized))
		Expect(unknown).To(Equal(wrong))
	})

	It("issues a distinct token per login", func() {
		first := login("admin@example.com", "admin-pass-1")
		second := login("admin@example.com", "admin-pass-1")
		Expect(first).NotTo(Equal(second))

		var sessions int
		Expect(env.db.Pool().QueryRow(env.ctx, `SELECT count(*) FROM user_sessions`).Scan(&sessions)).To(Succeed())
		Expect(sessions).To(Equal(2))
	})

	It("stores only a hash of the token", func() {
		token := login("admin@example.com", "admin-pass-1")

		var stored string
		Expect(env.db.Pool().QueryRow(env.ctx, `SELECT token_hash FROM user_sessions`).Scan(&stored)).To(Succeed())
		Expect(stored).To(Equal(auth.HashSessionToken(token)))
		Expect(stored).NotTo(Equal(token))
	})

	It("deletes an expired session when it is presented", func() {
		token := login("admin@example.com", "admin-pass-1")
		other := login("admin@example.com", "admin-pass-1")
		env.clock.Advance(auth.SessionTTL + time.Minute)

		res := request(http.MethodGet, "/api/auth/me", token, nil)
		Expect(res.status).To(Equal(http.StatusUnauthorized))

		var hashes []string
		rows, err := env.db.Pool().Query(env.ctx, `SELECT token_hash FROM user_sessions`)
		Expect(err).NotTo(HaveOccurred())
		for rows.Next() {
			var h string
			Expect(rows.Scan(&h)).To(Succeed())
			hashes = append(hashes, h)
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(hashes).To(ConsistOf(auth.HashSessionToken(other)))
	})

	It("prunes expired sessions in bulk", func() {
		login("admin@example.com", "admin-pass-1")
		login("admin@example.com", "admin-pass-1")
		env.clock.Advance(auth.SessionTTL + time.Minute)

		n, err := env.service.PruneExpiredSessions(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(2))
	})

	It("rejects a deactivated user's existing session", func() {
		token := login("admin@example.com", "admin-pass-1")
		_, err := env.db.Pool().Exec(env.ctx, `UPDATE users SET is_active = FALSE`)
		Expect(err).NotTo(HaveOccurred())

		res := request(http.MethodGet, "/api/auth/me", token, nil)
		Expect(res.status).To(Equal(http.StatusUnauthorized))
	})

	It("drops sessions with their user", func() {
		login("admin@example.com", "admin-pass-1")
		_, err := env.db.Pool().Exec(env.ctx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())

		var sessions int
		Expect(env.db.Pool().QueryRow(env.ctx, `SELECT count(*) FROM user_sessions`).Scan(&sessions)).To(Succeed())
		Expect(sessions).To(BeZero())
	})
})

var _ = Describe("Registration", func() {
	var adminToken string

	BeforeEach(func() {
		setupAdmin()
		adminToken = login("admin@example.com", "admin-pass-1")
	})

	newUser := map[string]string{"email": "reader@example.com", "password": "pw", "name": "Reader"}

	It("is closed until an admin opens it", func() {
		res := request(http.MethodPost, "/api/auth/register", "", newUser)
		Expect(res.status).To(Equal(http.StatusBadRequest))
		Expect(res.body).To(HaveKeyWithValue("message", auth.MsgRegistrationDisabled))

		res = request(http.MethodPut, "/api/admin/settings/registration", adminToken,
			map[string]bool{"allowRegistration": true})
		Expect(res.status).To(Equal(http.StatusOK))

		res = request(http.MethodPost, "/api/auth/register", "", newUser)
		Expect(res.status).To(Equal(http.StatusCreated))
		Expect(res.body["user"]).To(HaveKeyWithValue("role", "user"))

		res = request(http.MethodPost, "/api/auth/register", "", newUser)
		Expect(res.status).To(Equal(http.StatusBadRequest))
		Expect(res.body).To(HaveKeyWithValue("message", auth.MsgDuplicateEmail))
	})

	It("keeps the toggle admin-only", func() {
		Expect(env.service.SetRegistrationSetting(env.ctx, true)).To(BeTrue())
		Expect(request(http.MethodPost, "/api/auth/register", "", newUser).status).To(Equal(http.StatusCreated))
		userToken := login("reader@example.com", "pw")

		res := request(http.MethodGet, "/api/admin/settings/registration", userToken, nil)
		Expect(res.status).To(Equal(http.StatusForbidden))
		Expect(res.body).To(HaveKeyWithValue("message", web.MsgAdminRequired))

		res = request(http.MethodGet, "/api/admin/settings/registration", "not-a-token", nil)
		Expect(res.status).To(Equal(http.StatusUnauthorized))

		res = request(http.MethodGet, "/api/admin/settings/registration", adminToken, nil)
		Expect(res.status).To(Equal(http.StatusOK))
		Expect(res.body).To(HaveKeyWithValue("allowRegistration", true))
	})

	It("revokes every session of a user", func() {
		other := login("admin@example.com", "admin-pass-1")

		n, err := env.service.RevokeUserSessions(env.ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeEquivalentTo(2))

		Expect(request(http.MethodGet, "/api/auth/me", adminToken, nil).status).To(Equal(http.StatusUnauthorized))
		Expect(request(http.MethodGet, "/api/auth/me", other, nil).status).To(Equal(http.StatusUnauthorized))
	})
})
