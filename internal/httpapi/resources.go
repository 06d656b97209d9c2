package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"bloodlink.org/internal/blood"
	"bloodlink.org/internal/gateway"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type createOfferRequest struct {
	Request int64 `json:"request"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}
	pair, err := a.gw.ExchangeCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	access, err := a.gw.RefreshAccess(r.Context(), req.Refresh)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var reg blood.Registration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reg.Kind = blood.RoleCivilian
	if mux.Vars(r)["kind"] == "donor" {
		reg.Kind = blood.RoleDonor
	} else {
		reg.BloodGroup = ""
	}
	if err := a.gw.Register(r.Context(), reg); err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, blood.User{
		Username:  reg.Username,
		Email:     reg.Email,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
	})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	p, err := a.gw.Me(r.Context())
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) listProfiles(w http.ResponseWriter, r *http.Request) {
	var f gateway.ProfileFilter
	switch role := blood.Role(r.URL.Query().Get("user_type")); role {
	case blood.RoleDonor, blood.RoleCivilian:
		f.Role = role
	}
	items, err := a.gw.ListProfiles(r.Context(), f)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) searchDonors(w http.ResponseWriter, r *http.Request) {
	group := strings.TrimSpace(r.URL.Query().Get("blood_group"))
	if group == "" {
		writeError(w, r, http.StatusBadRequest, "blood_group query param is required")
		return
	}
	items, err := a.gw.ListProfiles(r.Context(), gateway.ProfileFilter{
		Role:       blood.RoleDonor,
		BloodGroup: blood.BloodGroup(group),
	})
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) listRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := gateway.RequestFilter{Status: blood.RequestStatus(strings.TrimSpace(q.Get("status")))}
	if raw := strings.TrimSpace(q.Get("civilian")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "civilian must be an integer")
			return
		}
		f.CivilianID = id
	}
	items, err := a.gw.ListRequests(r.Context(), f)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := a.gw.GetRequest(r.Context(), id)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (a *API) createRequest(w http.ResponseWriter, r *http.Request) {
	var draft blood.RequestDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.gw.CreateRequest(r.Context(), draft)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listOffers(w http.ResponseWriter, r *http.Request) {
	var f gateway.OfferFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("donor")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "donor must be an integer")
			return
		}
		f.DonorID = id
	}
	items, err := a.gw.ListOffers(r.Context(), f)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createOffer(w http.ResponseWriter, r *http.Request) {
	var req createOfferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Request <= 0 {
		writeError(w, r, http.StatusBadRequest, "request: this field is required")
		return
	}
	receipt, err := a.gw.CreateOffer(r.Context(), req.Request)
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) deleteOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.gw.DeleteOffer(r.Context(), id); err != nil {
		handleGatewayError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listBloodBanks(w http.ResponseWriter, r *http.Request) {
	items, err := a.gw.ListBloodBanks(r.Context())
	if err != nil {
		handleGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
