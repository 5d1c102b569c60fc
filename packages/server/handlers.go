package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.alis.build/alog"

	"github.com/vogtb/gridcalc/packages/spreadsheet"
	"github.com/vogtb/gridcalc/packages/store"
)

type WorkbookEndpointParams struct {
	WorkbookId string `uri:"workbook_id" binding:"required"`
}

type SheetEndpointParams struct {
	WorkbookId string `uri:"workbook_id" binding:"required"`
	Sheet      string `uri:"sheet" binding:"required"`
}

type CellEndpointParams struct {
	WorkbookId string `uri:"workbook_id" binding:"required"`
	Sheet      string `uri:"sheet" binding:"required"`
	Cell       string `uri:"cell" binding:"required"`
}

type CreateWorkbookRequest struct {
	Id string `json:"id" binding:"required"`
}

type AddSheetRequest struct {
	Name    string `json:"name" binding:"required"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

type SetCellRequest struct {
	Input *string `json:"input" binding:"required"`
}

type EvalRequest struct {
	Sheet   string `json:"sheet"`
	Formula string `json:"formula" binding:"required"`
}

// CellResponse is a cell with its raw input and evaluated display value
type CellResponse struct {
	Address string `json:"address"`
	Input   string `json:"input"`
	Value   string `json:"value"`
	Kind    string `json:"kind"`
}

type SheetResponse struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
}

type RenderResponse struct {
	Sheet string     `json:"sheet"`
	Rows  [][]string `json:"rows"`
}

func newSheetResponse(sheet *spreadsheet.Sheet) SheetResponse {
	return SheetResponse{
		Id:          sheet.ID,
		Name:        sheet.Name,
		RowCount:    sheet.RowCount,
		ColumnCount: sheet.ColumnCount,
	}
}

func (s *Server) cellResponse(sheet *spreadsheet.Sheet, address string) (CellResponse, error) {
	input, err := sheet.GetInputAt(address)
	if err != nil {
		return CellResponse{}, err
	}
	row, col := spreadsheet.ParseAddress(address)
	value := s.evaluator.EvaluateCell(sheet, row, col)
	return CellResponse{
		Address: spreadsheet.FormatAddress(row, col),
		Input:   input,
		Value:   value.Display(),
		Kind:    value.Kind().String(),
	}, nil
}

func (s *Server) ListWorkbooksAction(c *gin.Context) {
	ids, err := s.store.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"workbooks": ids})
}

func (s *Server) CreateWorkbookAction(c *gin.Context) {
	request := CreateWorkbookRequest{}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	defer s.lock(request.Id)()

	_, err := s.store.Load(ctx, request.Id)
	if err == nil {
		abortWithError(c, spreadsheet.NewApplicationError(spreadsheet.AlreadyExists, "workbook "+request.Id+" already exists"))
		return
	}
	if !errors.Is(err, store.ErrWorkbookNotFound) {
		abortWithError(c, err)
		return
	}

	wb := &spreadsheet.Workbook{}
	if _, err := wb.AddSheet(spreadsheet.DefaultSheetName, s.options.DefaultRows, s.options.DefaultColumns); err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.store.Save(ctx, request.Id, wb); err != nil {
		abortWithError(c, err)
		return
	}

	alog.Infof(ctx, "created workbook %s", request.Id)
	c.JSON(http.StatusCreated, wb)
}

func (s *Server) GetWorkbookAction(c *gin.Context) {
	params := WorkbookEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wb, err := s.store.Load(c.Request.Context(), params.WorkbookId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wb)
}

func (s *Server) DeleteWorkbookAction(c *gin.Context) {
	params := WorkbookEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	defer s.lock(params.WorkbookId)()
	if err := s.store.Delete(c.Request.Context(), params.WorkbookId); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) EvalAction(c *gin.Context) {
	params := WorkbookEndpointParams{}
	request := EvalRequest{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wb, err := s.store.Load(c.Request.Context(), params.WorkbookId)
	if err != nil {
		abortWithError(c, err)
		return
	}

	sheet := wb.ActiveSheet()
	if request.Sheet != "" {
		if sheet, err = wb.Lookup(request.Sheet); err != nil {
			abortWithError(c, err)
			return
		}
	}

	value := s.evaluator.EvaluateFormula(sheet, request.Formula)
	c.JSON(http.StatusOK, gin.H{
		"sheet": sheet.Name,
		"value": value.Display(),
		"kind":  value.Kind().String(),
	})
}

func (s *Server) AddSheetAction(c *gin.Context) {
	params := WorkbookEndpointParams{}
	request := AddSheetRequest{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if request.Rows == 0 {
		request.Rows = s.options.DefaultRows
	}
	if request.Columns == 0 {
		request.Columns = s.options.DefaultColumns
	}

	var sheet *spreadsheet.Sheet
	err := s.edit(c, params.WorkbookId, func(wb *spreadsheet.Workbook) (err error) {
		sheet, err = wb.AddSheet(request.Name, request.Rows, request.Columns)
		return err
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSheetResponse(sheet))
}

func (s *Server) RemoveSheetAction(c *gin.Context) {
	params := SheetEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.edit(c, params.WorkbookId, func(wb *spreadsheet.Workbook) error {
		sheet, err := wb.Lookup(params.Sheet)
		if err != nil {
			return err
		}
		return wb.RemoveSheet(sheet.ID)
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) RenderAction(c *gin.Context) {
	sheet, ok := s.loadSheet(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, RenderResponse{
		Sheet: sheet.Name,
		Rows:  s.evaluator.Render(sheet),
	})
}

func (s *Server) StatsAction(c *gin.Context) {
	sheet, ok := s.loadSheet(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sheet.Stats())
}

func (s *Server) GetCellAction(c *gin.Context) {
	params := CellEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wb, err := s.store.Load(c.Request.Context(), params.WorkbookId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	sheet, err := wb.Lookup(params.Sheet)
	if err != nil {
		abortWithError(c, err)
		return
	}

	response, err := s.cellResponse(sheet, params.Cell)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) SetCellAction(c *gin.Context) {
	params := CellEndpointParams{}
	request := SetCellRequest{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.writeCell(c, params, *request.Input)
}

func (s *Server) ClearCellAction(c *gin.Context) {
	params := CellEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.writeCell(c, params, "")
}

func (s *Server) writeCell(c *gin.Context, params CellEndpointParams, input string) {
	var response CellResponse
	err := s.edit(c, params.WorkbookId, func(wb *spreadsheet.Workbook) error {
		sheet, err := wb.Lookup(params.Sheet)
		if err != nil {
			return err
		}
		if err := sheet.SetInputAt(params.Cell, input); err != nil {
			return err
		}
		response, err = s.cellResponse(sheet, params.Cell)
		return err
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// edit loads a workbook under its lock, applies fn and saves the result.
// nothing is saved when fn fails.
func (s *Server) edit(c *gin.Context, id string, fn func(wb *spreadsheet.Workbook) error) error {
	ctx := c.Request.Context()
	defer s.lock(id)()

	wb, err := s.store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(wb); err != nil {
		return err
	}
	return s.store.Save(ctx, id, wb)
}

// loadSheet resolves the workbook and sheet of a sheet endpoint, writing the
// error response itself when that fails
func (s *Server) loadSheet(c *gin.Context) (*spreadsheet.Sheet, bool) {
	params := SheetEndpointParams{}
	if err := c.ShouldBindUri(&params); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	wb, err := s.store.Load(c.Request.Context(), params.WorkbookId)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	sheet, err := wb.Lookup(params.Sheet)
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return sheet, true
}
