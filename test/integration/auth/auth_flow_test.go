// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/natours/natours/internal/auth"
)

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Data    json.RawMessage `json:"data"`
	code    int
	cookies []*http.Cookie
}

type userData struct {
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

// call sends a JSON request to the test server. token may be empty.
func call(method, path, token string, body any) apiResponse {
	var payload bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&payload).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, &payload)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out apiResponse
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	out.code = resp.StatusCode
	out.cookies = resp.Cookies()
	return out
}

func decodeUser(r apiResponse) userData {
	var d userData
	Expect(json.Unmarshal(r.Data, &d)).To(Succeed())
	return d
}

func signup(name, email, password string) apiResponse {
	resp := call(http.MethodPost, "/api/v1/users/signup", "", map[string]string{
		"name": name, "email": email, "password": password, "passwordConfirm": password,
	})
	Expect(resp.code).To(Equal(http.StatusCreated))
	Expect(resp.Token).NotTo(BeEmpty())
	return resp
}

var _ = Describe("Account lifecycle", func() {
	BeforeEach(func() {
		cleanupUsers()
	})

	Describe("signup and login", func() {
		It("issues a session usable through the bearer header", func() {
			created := signup("Jonas Schmedtmann", "Jonas@Example.com", "pass1234")
			Expect(decodeUser(created).User.Email).To(Equal("jonas@example.com"))
			Expect(created.cookies).To(ContainElement(HaveField("Name", "jwt")))

			me := call(http.MethodGet, "/api/v1/users/me", created.Token, nil)
			Expect(me.code).To(Equal(http.StatusOK))
			Expect(decodeUser(me).User.Name).To(Equal("Jonas Schmedtmann"))
		})

		It("rejects a duplicate email", func() {
			signup("Jonas", "jonas@example.com", "pass1234")
			dup := call(http.MethodPost, "/api/v1/users/signup", "", map[string]string{
				"name": "Other", "email": "jonas@example.com", "password": "pass1234", "passwordConfirm": "pass1234",
			})
			Expect(dup.code).To(Equal(http.StatusConflict))
			Expect(dup.Status).To(Equal("fail"))
		})

		It("answers unknown email and wrong password identically", func() {
			signup("Jonas", "jonas@example.com", "pass1234")

			wrong := call(http.MethodPost, "/api/v1/users/login", "", map[string]string{
				"email": "jonas@example.com", "password": "nope12345",
			})
			unknown := call(http.MethodPost, "/api/v1/users/login", "", map[string]string{
				"email": "ghost@example.com", "password": "nope12345",
			})
			Expect(wrong.code).To(Equal(http.StatusUnauthorized))
			Expect(unknown.code).To(Equal(http.StatusUnauthorized))
			Expect(wrong.Message).To(Equal(unknown.Message))
		})

		It("requires a session for protected routes", func() {
			resp := call(http.MethodGet, "/api/v1/users/me", "", nil)
			Expect(resp.code).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("password changes", func() {
		It("invalidates earlier sessions after updateMyPassword", func() {
			created := signup("Jonas", "jonas@example.com", "pass1234")

			updated := call(http.MethodPatch, "/api/v1/users/updateMyPassword", created.Token, map[string]string{
				"passwordCurrent": "pass1234", "password": "newpass1234", "passwordConfirm": "newpass1234",
			})
			Expect(updated.code).To(Equal(http.StatusOK))
			Expect(updated.Token).NotTo(BeEmpty())

			stale := call(http.MethodGet, "/api/v1/users/me", created.Token, nil)
			Expect(stale.code).To(Equal(http.StatusUnauthorized))

			fresh := call(http.MethodGet, "/api/v1/users/me", updated.Token, nil)
			Expect(fresh.code).To(Equal(http.StatusOK))
		})

		It("resets a forgotten password exactly once", func() {
			created := signup("Jonas", "jonas@example.com", "pass1234")

			forgot := call(http.MethodPost, "/api/v1/users/forgotPassword", "", map[string]string{
				"email": "jonas@example.com",
			})
			Expect(forgot.code).To(Equal(http.StatusOK))
			token := env.outbox.lastResetToken()

			reset := call(http.MethodPatch, "/api/v1/users/resetPassword/"+token, "", map[string]string{
				"password": "reset1234", "passwordConfirm": "reset1234",
			})
			Expect(reset.code).To(Equal(http.StatusOK))
			Expect(reset.Token).NotTo(BeEmpty())

			again := call(http.MethodPatch, "/api/v1/users/resetPassword/"+token, "", map[string]string{
				"password": "other1234", "passwordConfirm": "other1234",
			})
			Expect(again.code).To(Equal(http.StatusBadRequest))

			Expect(call(http.MethodGet, "/api/v1/users/me", created.Token, nil).code).
				To(Equal(http.StatusUnauthorized))

			login := call(http.MethodPost, "/api/v1/users/login", "", map[string]string{
				"email": "jonas@example.com", "password": "reset1234",
			})
			Expect(login.code).To(Equal(http.StatusOK))
		})

		It("reports an unknown email on forgotPassword", func() {
			resp := call(http.MethodPost, "/api/v1/users/forgotPassword", "", map[string]string{
				"email": "ghost@example.com",
			})
			Expect(resp.code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("roles and deactivation", func() {
		It("restricts user lookup to admins", func() {
			admin := signup("Admin", "admin@example.com", "pass1234")
			guide := signup("Guide", "guide@example.com", "pass1234")
			guideID := decodeUser(guide).User.ID

			denied := call(http.MethodGet, "/api/v1/users/"+guideID, guide.Token, nil)
			Expect(denied.code).To(Equal(http.StatusForbidden))

			_, err := env.service.SetRole(env.ctx, "admin@example.com", auth.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())

			allowed := call(http.MethodGet, "/api/v1/users/"+guideID, admin.Token, nil)
			Expect(allowed.code).To(Equal(http.StatusOK))
			Expect(decodeUser(allowed).User.Email).To(Equal("guide@example.com"))
		})

		It("closes every session of a deactivated account", func() {
			created := signup("Jonas", "jonas@example.com", "pass1234")

			deleted, err := http.NewRequestWithContext(env.ctx, http.MethodDelete, env.server.URL+"/api/v1/users/deleteMe", nil)
			Expect(err).NotTo(HaveOccurred())
			deleted.Header.Set("Authorization", "Bearer "+created.Token)
			resp, err := env.server.Client().Do(deleted)
			Expect(err).NotTo(HaveOccurred())
			_ = resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			Expect(call(http.MethodGet, "/api/v1/users/me", created.Token, nil).code).
				To(Equal(http.StatusUnauthorized))
			login := call(http.MethodPost, "/api/v1/users/login", "", map[string]string{
				"email": "jonas@example.com", "password": "pass1234",
			})
			Expect(login.code).To(Equal(http.StatusUnauthorized))
		})
	})
})
