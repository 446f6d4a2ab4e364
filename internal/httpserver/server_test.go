package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/robalobadob/virusspread/internal/config"
	"github.com/robalobadob/virusspread/internal/database"
	"github.com/robalobadob/virusspread/internal/game"
	"github.com/robalobadob/virusspread/internal/savecodec"
	"github.com/robalobadob/virusspread/internal/store"
)

// centerRand seeds from the middle of the board outward and never shuffles.
type centerRand struct{}

func (centerRand) Choose(k, n int) []int {
	out := make([]int, k)
	for i := range out {
		out[i] = (n/2 + i) % n
	}
	return out
}

func (centerRand) Shuffle(int, func(i, j int)) {}

type harness struct {
	t      *testing.T
	srv    *Server
	ts     *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.OpenMigrated(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		DefaultSize:    3,
		MaxLevel:       5,
		DailySize:      4,
		DailySalt:      "test",
		JWTSecret:      "test-secret",
		JWTExpiresDays: 1,
		CookieName:     "vsc_token",
		ClientOrigin:   "http://localhost",
	}
	srv := New(cfg, store.NewMemoryStore(), db)
	srv.newRand = func() game.Rand { return centerRand{} }
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return &harness{t: t, srv: srv, ts: ts, client: &http.Client{Jar: jar}}
}

// do sends body as raw bytes when it is []byte, JSON otherwise.
func (h *harness) do(method, path string, body any) (int, []byte) {
	h.t.Helper()
	var rd io.Reader
	ctype := "application/json"
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
		ctype = "application/octet-stream"
	default:
		buf, _ := json.Marshal(b)
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, rd)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", ctype)
	}
	res, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	out, _ := io.ReadAll(res.Body)
	return res.StatusCode, out
}

func (h *harness) decode(raw []byte, v any) {
	h.t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		h.t.Fatalf("decode %s: %v", raw, err)
	}
}

func (h *harness) newGame(size int) gameView {
	h.t.Helper()
	code, raw := h.do("POST", "/game/new", map[string]int{"size": size})
	if code != http.StatusOK {
		h.t.Fatalf("new game: %d %s", code, raw)
	}
	var v gameView
	h.decode(raw, &v)
	return v
}

func (h *harness) importBoard(budget int, rows ...[]game.Cell) gameView {
	h.t.Helper()
	data, err := savecodec.Marshal(game.Snapshot{Size: len(rows), Level: 1, Budget: budget, Board: rows})
	if err != nil {
		h.t.Fatalf("marshal: %v", err)
	}
	code, raw := h.do("POST", "/game/import", data)
	if code != http.StatusOK {
		h.t.Fatalf("import: %d %s", code, raw)
	}
	var v gameView
	h.decode(raw, &v)
	return v
}

func errorKind(t *testing.T, raw []byte) errorRes {
	t.Helper()
	var e errorRes
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode error body %s: %v", raw, err)
	}
	return e
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	code, raw := h.do("GET", "/health", nil)
	if code != http.StatusOK || string(raw) != `{"ok":true}` {
		t.Fatalf("health = %d %s", code, raw)
	}
}

func TestNewGame(t *testing.T) {
	h := newHarness(t)
	v := h.newGame(3)
	if v.GameID == "" || v.Size != 3 || v.Level != 1 || v.Budget != 6 || v.Status != game.StatusPlaying {
		t.Fatalf("view = %+v", v)
	}
	if v.Board[1][1] != int(game.Infected) || v.FreeCells != 8 {
		t.Fatalf("infection not seeded at centre: %v", v.Board)
	}

	code, raw := h.do("GET", "/game/"+v.GameID, nil)
	var again gameView
	h.decode(raw, &again)
	if code != http.StatusOK || !reflect.DeepEqual(again, v) {
		t.Fatalf("get game = %d %+v", code, again)
	}
}

func TestNewGame_OutOfRange(t *testing.T) {
	h := newHarness(t)
	code, raw := h.do("POST", "/game/new", map[string]int{"size": 2})
	if code != http.StatusBadRequest || errorKind(t, raw).Error != "out_of_range" {
		t.Fatalf("size 2 = %d %s", code, raw)
	}
}

func TestTurnCycle(t *testing.T) {
	h := newHarness(t)
	v := h.newGame(3)

	code, raw := h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 0, Col: 0})
	if code != http.StatusOK {
		t.Fatalf("barrier: %d %s", code, raw)
	}
	h.decode(raw, &v)
	if v.Budget != 5 || !v.BarrierUsed || v.Board[0][0] != int(game.Barrier) {
		t.Fatalf("after barrier: %+v", v)
	}

	code, raw = h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 2, Col: 2})
	if code != http.StatusConflict || errorKind(t, raw).Error != "barrier_already_used" {
		t.Fatalf("second barrier = %d %s", code, raw)
	}

	code, raw = h.do("POST", "/game/spread", gameIDReq{GameID: v.GameID})
	if code != http.StatusOK {
		t.Fatalf("spread: %d %s", code, raw)
	}
	var sr spreadRes
	h.decode(raw, &sr)
	if !reflect.DeepEqual(sr.NewInfections, []game.Coord{{Row: 1, Col: 2}}) || sr.Game.Turn != 1 || sr.Game.BarrierUsed {
		t.Fatalf("spread = %+v", sr)
	}

	code, raw = h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 1, Col: 1})
	e := errorKind(t, raw)
	if code != http.StatusUnprocessableEntity || e.Error != "invalid_placement" || e.Detail != game.ReasonOccupied {
		t.Fatalf("occupied = %d %s", code, raw)
	}
	code, raw = h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 7, Col: 0})
	if code != http.StatusUnprocessableEntity || errorKind(t, raw).Detail != game.ReasonOutOfBounds {
		t.Fatalf("out of bounds = %d %s", code, raw)
	}
}

func TestBarrier_Isolation(t *testing.T) {
	h := newHarness(t)
	v := h.importBoard(6,
		[]game.Cell{0, 0, 0},
		[]game.Cell{0, 1, 0},
		[]game.Cell{0, 2, 0})
	// (2,0) is only reachable through (1,0).
	code, raw := h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 1, Col: 0})
	e := errorKind(t, raw)
	if code != http.StatusUnprocessableEntity || e.Detail != game.ReasonIsolates {
		t.Fatalf("isolating barrier = %d %s", code, raw)
	}
	_, raw = h.do("GET", "/game/"+v.GameID, nil)
	var after gameView
	h.decode(raw, &after)
	if !reflect.DeepEqual(after.Board, v.Board) || after.Budget != 6 {
		t.Fatalf("rejected placement changed the game")
	}
}

func TestBudgetExhausted(t *testing.T) {
	h := newHarness(t)
	v := h.importBoard(1,
		[]game.Cell{0, 0, 0},
		[]game.Cell{0, 1, 0},
		[]game.Cell{0, 0, 0})
	if code, raw := h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 0, Col: 0}); code != http.StatusOK {
		t.Fatalf("last barrier: %d %s", code, raw)
	}
	_, raw := h.do("GET", "/game/"+v.GameID, nil)
	h.decode(raw, &v)
	if v.Budget != 0 || v.Status != game.StatusLost {
		t.Fatalf("spent budget with open board should be lost: %+v", v)
	}
	code, raw := h.do("POST", "/game/spread", gameIDReq{GameID: v.GameID})
	if code != http.StatusConflict || errorKind(t, raw).Error != "game_over" {
		t.Fatalf("spread after loss = %d %s", code, raw)
	}
}

func TestExportImport(t *testing.T) {
	h := newHarness(t)
	v := h.newGame(5)
	h.do("POST", "/game/barrier", barrierReq{GameID: v.GameID, Row: 0, Col: 0})
	h.do("POST", "/game/spread", gameIDReq{GameID: v.GameID})
	_, raw := h.do("GET", "/game/"+v.GameID, nil)
	h.decode(raw, &v)

	code, data := h.do("GET", "/game/"+v.GameID+"/export", nil)
	if code != http.StatusOK || len(data) != savecodec.EncodedLen(5) {
		t.Fatalf("export = %d, %d bytes", code, len(data))
	}

	code, raw = h.do("POST", "/game/import", data)
	if code != http.StatusOK {
		t.Fatalf("import: %d %s", code, raw)
	}
	var imported gameView
	h.decode(raw, &imported)
	if imported.GameID == v.GameID {
		t.Fatalf("import must start a new session")
	}
	if !reflect.DeepEqual(imported.Board, v.Board) || imported.Budget != v.Budget || imported.Level != v.Level {
		t.Fatalf("imported game differs: %+v vs %+v", imported, v)
	}
}

func TestImport_Malformed(t *testing.T) {
	h := newHarness(t)
	code, raw := h.do("POST", "/game/import", []byte{0, 3, 1})
	if code != http.StatusBadRequest || errorKind(t, raw).Error != "malformed_save" {
		t.Fatalf("truncated import = %d %s", code, raw)
	}
	code, raw = h.do("POST", "/game/import", []byte{0, 2, 1, 1, 0, 0})
	if code != http.StatusBadRequest || errorKind(t, raw).Error != "out_of_range" {
		t.Fatalf("size-2 import = %d %s", code, raw)
	}
}

func TestUnknownGame(t *testing.T) {
	h := newHarness(t)
	code, _ := h.do("POST", "/game/spread", gameIDReq{GameID: "nope"})
	if code != http.StatusNotFound {
		t.Fatalf("unknown game = %d", code)
	}
}

func TestWinAndNextLevel(t *testing.T) {
	h := newHarness(t)
	v := h.importBoard(3,
		[]game.Cell{1, 1, 1},
		[]game.Cell{1, 1, 1},
		[]game.Cell{1, 1, 0})

	code, raw := h.do("POST", "/game/next", gameIDReq{GameID: v.GameID})
	if code != http.StatusConflict || errorKind(t, raw).Error != "not_won" {
		t.Fatalf("next before win = %d %s", code, raw)
	}

	_, raw = h.do("POST", "/game/spread", gameIDReq{GameID: v.GameID})
	var sr spreadRes
	h.decode(raw, &sr)
	if sr.Game.Status != game.StatusWon || sr.Game.FreeCells != 0 {
		t.Fatalf("filled board should be won: %+v", sr.Game)
	}

	code, raw = h.do("POST", "/game/next", gameIDReq{GameID: v.GameID})
	if code != http.StatusOK {
		t.Fatalf("next: %d %s", code, raw)
	}
	h.decode(raw, &v)
	if v.Level != 2 || v.Budget != game.MaxBarriers(3, 2) || v.Status != game.StatusPlaying || v.FreeCells != 7 {
		t.Fatalf("level 2 view = %+v", v)
	}
}

func TestSaves(t *testing.T) {
	h := newHarness(t)
	v := h.newGame(4)

	code, raw := h.do("POST", "/saves", saveReq{GameID: v.GameID, Name: "first"})
	if code != http.StatusOK {
		t.Fatalf("save: %d %s", code, raw)
	}
	code, raw = h.do("GET", "/saves", nil)
	var list []map[string]any
	h.decode(raw, &list)
	if code != http.StatusOK || len(list) != 1 || list[0]["name"] != "first" {
		t.Fatalf("list = %d %s", code, raw)
	}

	code, raw = h.do("POST", "/saves/load", loadReq{Name: "first"})
	if code != http.StatusOK {
		t.Fatalf("load: %d %s", code, raw)
	}
	var loaded gameView
	h.decode(raw, &loaded)
	if !reflect.DeepEqual(loaded.Board, v.Board) || loaded.GameID == v.GameID {
		t.Fatalf("loaded = %+v", loaded)
	}

	// A different guest sees none of it.
	other := &http.Client{}
	req, _ := http.NewRequest("GET", h.ts.URL+"/saves", nil)
	res, err := other.Do(req)
	if err != nil {
		t.Fatalf("other guest: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if string(bytes.TrimSpace(body)) != "[]" {
		t.Fatalf("other guest saw %s", body)
	}

	if code, _ := h.do("DELETE", "/saves/first", nil); code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}
	if code, _ := h.do("POST", "/saves/load", loadReq{Name: "first"}); code != http.StatusNotFound {
		t.Fatalf("load deleted = %d", code)
	}
}

func TestAccountStats(t *testing.T) {
	h := newHarness(t)
	creds := credentialsReq{Username: "player_one", Password: "correct horse"}
	if code, raw := h.do("POST", "/auth/signup", creds); code != http.StatusOK {
		t.Fatalf("signup: %d %s", code, raw)
	}
	if code, _ := h.do("POST", "/auth/signup", creds); code != http.StatusConflict {
		t.Fatalf("duplicate signup = %d", code)
	}

	code, raw := h.do("GET", "/auth/me", nil)
	var me authUser
	h.decode(raw, &me)
	if code != http.StatusOK || me.Username != "player_one" {
		t.Fatalf("me = %d %s", code, raw)
	}

	v := h.importBoard(3,
		[]game.Cell{1, 1, 1},
		[]game.Cell{2, 1, 1},
		[]game.Cell{1, 1, 0})
	h.do("POST", "/game/spread", gameIDReq{GameID: v.GameID})

	_, raw = h.do("GET", "/stats/me", nil)
	var stats struct {
		GamesPlayed int `json:"gamesPlayed"`
		Wins        int `json:"wins"`
		Streak      int `json:"streak"`
		BestLevel   int `json:"bestLevel"`
	}
	h.decode(raw, &stats)
	if stats.GamesPlayed != 1 || stats.Wins != 1 || stats.Streak != 1 || stats.BestLevel != 1 {
		t.Fatalf("stats = %s", raw)
	}

	_, raw = h.do("GET", "/games/mine", nil)
	var games []map[string]any
	h.decode(raw, &games)
	if len(games) != 1 || games[0]["status"] != "won" {
		t.Fatalf("games/mine = %s", raw)
	}

	h.do("POST", "/auth/logout", nil)
	if code, _ := h.do("GET", "/stats/me", nil); code != http.StatusUnauthorized {
		t.Fatalf("stats after logout = %d", code)
	}
	if code, _ := h.do("POST", "/auth/login", credentialsReq{Username: "player_one", Password: "wrong password"}); code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", code)
	}
	if code, _ := h.do("POST", "/auth/login", creds); code != http.StatusOK {
		t.Fatalf("login = %d", code)
	}
}

func TestDaily(t *testing.T) {
	h := newHarness(t)
	code, raw := h.do("POST", "/daily/new", nil)
	if code != http.StatusOK {
		t.Fatalf("daily: %d %s", code, raw)
	}
	var first dailyNewRes
	h.decode(raw, &first)
	if first.Played || first.Game == nil || first.Game.Size != 4 || first.Game.MaxLevel != 1 || first.Game.Daily != first.Date {
		t.Fatalf("daily = %s", raw)
	}

	_, raw = h.do("POST", "/daily/new", nil)
	var again dailyNewRes
	h.decode(raw, &again)
	if again.Game == nil || again.Game.GameID != first.Game.GameID {
		t.Fatalf("daily should resume the same session: %s", raw)
	}

	// Another player gets the same board.
	other := newHarness(t)
	other.srv.cfg.DailySalt = h.srv.cfg.DailySalt
	_, raw = other.do("POST", "/daily/new", nil)
	var theirs dailyNewRes
	other.decode(raw, &theirs)
	if !reflect.DeepEqual(theirs.Game.Board, first.Game.Board) {
		t.Fatalf("daily boards differ between players")
	}

	code, raw = h.do("GET", "/daily/leaderboard", nil)
	var lb lbRes
	h.decode(raw, &lb)
	if code != http.StatusOK || lb.Date != first.Date || len(lb.Top) != 0 {
		t.Fatalf("leaderboard = %d %s", code, raw)
	}
	if code, _ := h.do("GET", "/daily/leaderboard?date=yesterday", nil); code != http.StatusBadRequest {
		t.Fatalf("bad date = %d", code)
	}
}

func anonCookie(t *testing.T, h *harness) string {
	t.Helper()
	u, _ := url.Parse(h.ts.URL)
	for _, c := range h.client.Jar.Cookies(u) {
		if c.Name == anonCookieName {
			return c.Value
		}
	}
	t.Fatalf("no %s cookie set", anonCookieName)
	return ""
}

func TestDaily_WinIsRecorded(t *testing.T) {
	h := newHarness(t)
	_, raw := h.do("POST", "/daily/new", nil)
	var start dailyNewRes
	h.decode(raw, &start)
	if start.Game == nil {
		t.Fatalf("daily = %s", raw)
	}
	anon := anonCookie(t, h)

	// Swap in a board one tick from the end: two barriers placed, one free
	// cell left next to the infection.
	g, err := game.Restore(game.Snapshot{Size: 4, Level: 1, Budget: game.MaxBarriers(4, 1) - 2, Board: [][]game.Cell{
		{1, 1, 1, 1},
		{1, 1, 1, 1},
		{1, 1, 2, 2},
		{1, 1, 1, 0},
	}}, game.Options{MaxLevel: 1, Rand: game.NewRand(1)})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	sess, err := h.srv.store.Get(context.Background(), start.Game.GameID)
	if err != nil {
		t.Fatalf("daily session: %v", err)
	}
	sess.Lock()
	sess.Game = g
	sess.Unlock()

	_, raw = h.do("POST", "/game/spread", gameIDReq{GameID: start.Game.GameID})
	var sr spreadRes
	h.decode(raw, &sr)
	if sr.Game.Status != game.StatusWon {
		t.Fatalf("daily not won: %s", raw)
	}

	code, raw := h.do("POST", "/daily/new", nil)
	var again dailyNewRes
	h.decode(raw, &again)
	if code != http.StatusOK || !again.Played || again.Game != nil {
		t.Fatalf("second daily/new after a win = %d %s", code, raw)
	}

	_, raw = h.do("GET", "/daily/leaderboard", nil)
	if bytes.Contains(raw, []byte(anon)) {
		t.Fatalf("leaderboard exposes the guest cookie: %s", raw)
	}
	var lb lbRes
	h.decode(raw, &lb)
	if len(lb.Top) != 1 {
		t.Fatalf("leaderboard = %s", raw)
	}
	row := lb.Top[0]
	if row.Player != "guest" || row.Turns != 1 || row.Barriers != 2 || row.Infected != 14 || row.ElapsedMs < 0 {
		t.Fatalf("leaderboard row = %+v", row)
	}

	// Signing up carries the result over, so the daily stays played.
	if code, raw := h.do("POST", "/auth/signup", credentialsReq{Username: "daily_fan", Password: "correct horse"}); code != http.StatusOK {
		t.Fatalf("signup: %d %s", code, raw)
	}
	_, raw = h.do("POST", "/daily/new", nil)
	h.decode(raw, &again)
	if !again.Played || again.Game != nil {
		t.Fatalf("daily/new after signup = %s", raw)
	}
	_, raw = h.do("GET", "/daily/leaderboard", nil)
	h.decode(raw, &lb)
	if len(lb.Top) != 1 || lb.Top[0].Player != "daily_fan" {
		t.Fatalf("leaderboard after signup = %s", raw)
	}
}

func TestSweepSessions(t *testing.T) {
	h := newHarness(t)
	v := h.newGame(3)
	_, raw := h.do("POST", "/daily/new", nil)
	var before dailyNewRes
	h.decode(raw, &before)

	if n := h.srv.SweepSessions(context.Background(), 0); n != 2 {
		t.Fatalf("evicted %d sessions, want 2", n)
	}
	if code, _ := h.do("GET", "/game/"+v.GameID, nil); code != http.StatusNotFound {
		t.Fatalf("evicted game = %d, want 404", code)
	}
	h.srv.dailyIdx.mu.Lock()
	left := len(h.srv.dailyIdx.sessions)
	h.srv.dailyIdx.mu.Unlock()
	if left != 0 {
		t.Fatalf("daily index kept %d entries", left)
	}

	_, raw = h.do("POST", "/daily/new", nil)
	var fresh dailyNewRes
	h.decode(raw, &fresh)
	if fresh.Game == nil || fresh.Game.GameID == before.Game.GameID {
		t.Fatalf("daily after eviction = %s", raw)
	}
}
