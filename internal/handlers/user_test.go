package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/orstracker/apiserver/internal/services"
	"github.com/orstracker/apiserver/types"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newUserTestRouter(repo *fakeUserRepo) *chi.Mux {
	handler := NewUserHandler(services.NewUserService(repo))
	router := chi.NewRouter()
	router.Route("/user", func(r chi.Router) {
		UserRouter(r, handler)
	})
	return router
}

func seedUsers(t *testing.T, repo *fakeUserRepo, n int, role string) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Create(context.Background(), types.User{
			Username: fmt.Sprintf("%s-%d", role, i),
			Email:    fmt.Sprintf("%s-%d@example.com", role, i),
			Role:     role,
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
}

func TestGetAllUsersPagination(t *testing.T) {
	repo := newFakeUserRepo()
	seedUsers(t, repo, 25, types.RoleViewer)
	router := newUserTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/user/getAllUser?page=2&limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp UserListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Page != 2 || resp.Limit != 10 {
		t.Fatalf("echoed page/limit wrong: %d/%d", resp.Page, resp.Limit)
	}
	if resp.Total != 25 {
		t.Fatalf("total is %d, want 25", resp.Total)
	}
	if resp.TotalPages != 3 {
		t.Fatalf("totalPages is %d, want 3", resp.TotalPages)
	}
	if len(resp.Data) != 10 {
		t.Fatalf("page size is %d, want 10", len(resp.Data))
	}
}

func TestGetAllUsersRoleFilter(t *testing.T) {
	repo := newFakeUserRepo()
	seedUsers(t, repo, 3, types.RoleInspector)
	seedUsers(t, repo, 5, types.RoleViewer)
	router := newUserTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/user/getAllUser?role="+types.RoleInspector, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp UserListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("total is %d, want 3", resp.Total)
	}
	for _, user := range resp.Data {
		if user.Role != types.RoleInspector {
			t.Fatalf("role filter leaked %q", user.Role)
		}
	}
}

func TestGetAllUsersInvalidPagination(t *testing.T) {
	router := newUserTestRouter(newFakeUserRepo())

	for _, query := range []string{"page=0", "page=abc", "limit=0", "limit=-5"} {
		req := httptest.NewRequest(http.MethodGet, "/user/getAllUser?"+query, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestGetAllUsersLimitCapped(t *testing.T) {
	repo := newFakeUserRepo()
	seedUsers(t, repo, 1, types.RoleViewer)
	router := newUserTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/user/getAllUser?limit=5000", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp UserListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Limit != maxLimit {
		t.Fatalf("limit is %d, want cap %d", resp.Limit, maxLimit)
	}
}

func TestGetUserByIdInvalidAndMissing(t *testing.T) {
	router := newUserTestRouter(newFakeUserRepo())

	req := httptest.NewRequest(http.MethodGet, "/user/getUserById/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/user/getUserById/"+primitive.NewObjectID().Hex(), nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}
}

func TestDeleteUserReturnsRecord(t *testing.T) {
	repo := newFakeUserRepo()
	router := newUserTestRouter(repo)

	seeded, err := repo.Create(context.Background(), types.User{
		Username: "inspector1",
		Email:    "inspector1@example.com",
		Role:     types.RoleInspector,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/user/deleteUser/"+seeded.ID.Hex(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data types.User `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Username != "inspector1" {
		t.Fatalf("deleted record mismatch: %+v", resp.Data)
	}
	if _, ok := repo.users[seeded.ID]; ok {
		t.Fatalf("user still present after delete")
	}
}
