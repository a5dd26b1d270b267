package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/crsh/server/internal/game/card"
	"github.com/crsh/server/internal/game/player"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string        `json:"token"`
	Player player.Player `json:"player"`
}

func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		g.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username, email, and password are required"})
		return
	}

	p, err := g.co.RegisterAccount(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, p)
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	token, p, err := g.co.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		g.writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	g.writeJSON(w, http.StatusOK, loginResponse{Token: token.String(), Player: p})
}

func (g *Gateway) handleListMatches(w http.ResponseWriter, r *http.Request) {
	rooms, err := g.co.ListRooms(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, rooms)
}

func (g *Gateway) handleJoin(w http.ResponseWriter, r *http.Request) {
	token, err := sessionToken(r)
	if err != nil {
		g.writeError(w, err)
		return
	}

	state, err := g.co.JoinMatch(r.Context(), token, chi.URLParam(r, "match"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, state)
}

func (g *Gateway) handleGetCards(w http.ResponseWriter, r *http.Request) {
	deck, err := g.co.GetCards(r.Context(), chi.URLParam(r, "deck"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, deck)
}

type addCardRequest struct {
	Content string `json:"content"`
}

func (g *Gateway) handleAddCard(w http.ResponseWriter, r *http.Request) {
	if _, err := sessionToken(r); err != nil {
		g.writeError(w, err)
		return
	}

	var color card.Color
	switch chi.URLParam(r, "color") {
	case "black":
		color = card.ColorBlack
	case "white":
		color = card.ColorWhite
	default:
		g.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "card type must be black or white"})
		return
	}

	var req addCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		g.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "content is required"})
		return
	}

	cd, err := g.co.AddCard(r.Context(), chi.URLParam(r, "deck"), color, req.Content)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, cd)
}

func (g *Gateway) handleDelCard(w http.ResponseWriter, r *http.Request) {
	if _, err := sessionToken(r); err != nil {
		g.writeError(w, err)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "card id must be an integer"})
		return
	}

	cd, err := g.co.DelCard(r.Context(), chi.URLParam(r, "deck"), card.ID(id))
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, cd)
}
