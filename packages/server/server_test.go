package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	json "github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
	"github.com/vogtb/gridcalc/packages/store"
)

type mockStore struct {
	mock.Mock
}

func newMockStore(t *testing.T) *mockStore {
	m := &mockStore{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockStore) Save(ctx context.Context, id string, wb *spreadsheet.Workbook) error {
	return m.Called(ctx, id, wb).Error(0)
}

func (m *mockStore) Load(ctx context.Context, id string) (*spreadsheet.Workbook, error) {
	args := m.Called(ctx, id)
	wb, _ := args.Get(0).(*spreadsheet.Workbook)
	return wb, args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) List(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func sampleWorkbook(t *testing.T) *spreadsheet.Workbook {
	t.Helper()
	wb := spreadsheet.NewWorkbook()
	sheet := wb.ActiveSheet()
	require.NoError(t, sheet.SetInputAt("A1", "5"))
	require.NoError(t, sheet.SetInputAt("A2", "7"))
	require.NoError(t, sheet.SetInputAt("B1", "=A1*2"))
	return wb
}

func newTestServer(s Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	clock := &spreadsheet.FixedClock{}
	return New(s, spreadsheet.NewEvaluator(spreadsheet.WithClock(clock)), Options{DefaultRows: 20, DefaultColumns: 5}).Router()
}

func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func parseJsonBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

const cellsPath = "/api/" + ApiVersion + "/workbooks/book/sheets/Sheet1/cells/"

func TestGetCellAction(t *testing.T) {
	t.Run("should return evaluated cell", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)

		w := doRequest(newTestServer(s), http.MethodGet, cellsPath+"b1", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, map[string]any{
			"address": "B1",
			"input":   "=A1*2",
			"value":   "10",
			"kind":    "number",
		}, parseJsonBody(t, w))
	})

	t.Run("empty cell", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)

		w := doRequest(newTestServer(s), http.MethodGet, cellsPath+"Z20", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		response := parseJsonBody(t, w)
		assert.Equal(t, "", response["value"])
		assert.Equal(t, "empty", response["kind"])
	})

	t.Run("workbook not found", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(nil, store.ErrWorkbookNotFound)

		w := doRequest(newTestServer(s), http.MethodGet, cellsPath+"A1", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, store.ErrWorkbookNotFound.Error(), parseJsonBody(t, w)["error"])
	})

	t.Run("sheet not found", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)

		w := doRequest(newTestServer(s), http.MethodGet, "/api/"+ApiVersion+"/workbooks/book/sheets/Nope/cells/A1", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed address", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)

		w := doRequest(newTestServer(s), http.MethodGet, cellsPath+"1A", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(nil, errors.New("disk on fire"))

		w := doRequest(newTestServer(s), http.MethodGet, cellsPath+"A1", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "disk on fire", parseJsonBody(t, w)["error"])
	})
}

func TestSetCellAction(t *testing.T) {
	t.Run("success write", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)
		s.On("Save", mock.Anything, "book", mock.MatchedBy(func(wb *spreadsheet.Workbook) bool {
			return wb.Sheets[0].GetInput(1, 1) == "=SUM(A1:A2)"
		})).Return(nil)

		w := doRequest(newTestServer(s), http.MethodPut, cellsPath+"B2", map[string]string{"input": " =SUM(A1:A2) "})

		assert.Equal(t, http.StatusOK, w.Code)
		response := parseJsonBody(t, w)
		assert.Equal(t, "=SUM(A1:A2)", response["input"])
		assert.Equal(t, "12", response["value"])
	})

	t.Run("formula errors are values", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)
		s.On("Save", mock.Anything, "book", mock.Anything).Return(nil)

		w := doRequest(newTestServer(s), http.MethodPut, cellsPath+"A1", map[string]string{"input": "=B1"})

		assert.Equal(t, http.StatusOK, w.Code)
		response := parseJsonBody(t, w)
		assert.Equal(t, "#CYCLE!", response["value"])
		assert.Equal(t, "error", response["kind"])
	})

	t.Run("outside the sheet", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)

		w := doRequest(newTestServer(s), http.MethodPut, cellsPath+"AA1", map[string]string{"input": "1"})

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		s.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing input", func(t *testing.T) {
		s := newMockStore(t)

		w := doRequest(newTestServer(s), http.MethodPut, cellsPath+"A1", map[string]string{"value": "1"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("save failure", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)
		s.On("Save", mock.Anything, "book", mock.Anything).Return(errors.New("read-only"))

		w := doRequest(newTestServer(s), http.MethodPut, cellsPath+"A1", map[string]string{"input": "1"})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestClearCellAction(t *testing.T) {
	s := newMockStore(t)
	wb := sampleWorkbook(t)
	s.On("Load", mock.Anything, "book").Return(wb, nil)
	s.On("Save", mock.Anything, "book", wb).Return(nil)

	w := doRequest(newTestServer(s), http.MethodDelete, cellsPath+"A1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", wb.ActiveSheet().GetInput(0, 0))
	assert.Equal(t, 2, wb.ActiveSheet().PopulatedCount())
}

func TestCreateWorkbookAction(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "new").Return(nil, store.ErrWorkbookNotFound)
		s.On("Save", mock.Anything, "new", mock.MatchedBy(func(wb *spreadsheet.Workbook) bool {
			return len(wb.Sheets) == 1 && wb.Sheets[0].RowCount == 20 && wb.Sheets[0].ColumnCount == 5
		})).Return(nil)

		w := doRequest(newTestServer(s), http.MethodPost, "/api/"+ApiVersion+"/workbooks", map[string]string{"id": "new"})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "sheet-1", parseJsonBody(t, w)["activeSheetId"])
	})

	t.Run("already exists", func(t *testing.T) {
		s := newMockStore(t)
		s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)

		w := doRequest(newTestServer(s), http.MethodPost, "/api/"+ApiVersion+"/workbooks", map[string]string{"id": "book"})

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing id", func(t *testing.T) {
		w := doRequest(newTestServer(newMockStore(t)), http.MethodPost, "/api/"+ApiVersion+"/workbooks", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListWorkbooksAction(t *testing.T) {
	s := newMockStore(t)
	s.On("List", mock.Anything).Return(nil, nil)

	w := doRequest(newTestServer(s), http.MethodGet, "/api/"+ApiVersion+"/workbooks", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, parseJsonBody(t, w)["workbooks"])
}

func TestEvalAction(t *testing.T) {
	s := newMockStore(t)
	s.On("Load", mock.Anything, "book").Return(sampleWorkbook(t), nil)
	router := newTestServer(s)

	w := doRequest(router, http.MethodPost, "/api/"+ApiVersion+"/workbooks/book/eval", map[string]string{"formula": "=SUM(A1:B2) & \"!\""})
	assert.Equal(t, http.StatusOK, w.Code)
	response := parseJsonBody(t, w)
	assert.Equal(t, "22!", response["value"])
	assert.Equal(t, "text", response["kind"])
	assert.Equal(t, "Sheet1", response["sheet"])

	w = doRequest(router, http.MethodPost, "/api/"+ApiVersion+"/workbooks/book/eval", map[string]string{"formula": "=1", "sheet": "Other"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRenderAndStatsActions(t *testing.T) {
	s := newMockStore(t)
	wb := sampleWorkbook(t)
	_, err := wb.AddSheet("Small", 2, 3)
	require.NoError(t, err)
	require.NoError(t, wb.Sheets[1].SetInputAt("C2", "=1+1"))
	s.On("Load", mock.Anything, "book").Return(wb, nil)
	router := newTestServer(s)

	w := doRequest(router, http.MethodGet, "/api/"+ApiVersion+"/workbooks/book/sheets/small/render", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var render RenderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &render))
	assert.Equal(t, RenderResponse{Sheet: "Small", Rows: [][]string{{"", "", ""}, {"", "", "2"}}}, render)

	w = doRequest(router, http.MethodGet, "/api/"+ApiVersion+"/workbooks/book/sheets/Sheet1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"populated": float64(3),
		"formulas":  float64(1),
		"maxRow":    float64(1),
		"maxColumn": float64(1),
	}, parseJsonBody(t, w))
}

func TestSheetActions(t *testing.T) {
	s := newMockStore(t)
	wb := sampleWorkbook(t)
	s.On("Load", mock.Anything, "book").Return(wb, nil)
	s.On("Save", mock.Anything, "book", wb).Return(nil)
	router := newTestServer(s)

	w := doRequest(router, http.MethodPost, "/api/"+ApiVersion+"/workbooks/book/sheets", map[string]any{"name": "Data"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, map[string]any{
		"id":          "sheet-2",
		"name":        "Data",
		"rowCount":    float64(20),
		"columnCount": float64(5),
	}, parseJsonBody(t, w))

	w = doRequest(router, http.MethodPost, "/api/"+ApiVersion+"/workbooks/book/sheets", map[string]any{"name": "data"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/"+ApiVersion+"/workbooks/book/sheets/Sheet1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"Data"}, wb.SheetNames())

	w = doRequest(router, http.MethodDelete, "/api/"+ApiVersion+"/workbooks/book/sheets/Data", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestHealthcheck(t *testing.T) {
	w := doRequest(newTestServer(newMockStore(t)), http.MethodGet, "/healthcheck", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "health", w.Body.String())
}

func TestServerWithBoltStore(t *testing.T) {
	ctx := context.Background()
	bolt, err := store.Open(ctx, filepath.Join(t.TempDir(), "gridcalc.db"))
	require.NoError(t, err)
	defer bolt.Close()
	router := newTestServer(bolt)

	w := doRequest(router, http.MethodPost, "/api/"+ApiVersion+"/workbooks", map[string]string{"id": "budget"})
	require.Equal(t, http.StatusCreated, w.Code)

	base := "/api/" + ApiVersion + "/workbooks/budget/sheets/Sheet1/cells/"
	for address, input := range map[string]string{"A1": "10", "A2": "32", "A3": "=SUM(A1:A2)"} {
		w = doRequest(router, http.MethodPut, base+address, map[string]string{"input": input})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodGet, base+"A3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", parseJsonBody(t, w)["value"])

	w = doRequest(router, http.MethodDelete, base+"A2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, base+"A3", nil)
	assert.Equal(t, "10", parseJsonBody(t, w)["value"])

	w = doRequest(router, http.MethodDelete, "/api/"+ApiVersion+"/workbooks/budget", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(router, http.MethodGet, "/api/"+ApiVersion+"/workbooks/budget", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
