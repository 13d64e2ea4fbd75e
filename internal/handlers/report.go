// internal/handlers/report.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pricematch/pricematch/internal/models"
	"github.com/pricematch/pricematch/internal/services"
	"github.com/pricematch/pricematch/internal/utils"
)

// ReportHandler serves read-only views of the record store.
type ReportHandler struct {
	productService *services.ProductService
}

func NewReportHandler(productService *services.ProductService) *ReportHandler {
	return &ReportHandler{productService: productService}
}

// brandParam validates the :brand path segment, answering 400 when it is malformed.
func brandParam(c *gin.Context) (string, bool) {
	brand := c.Param("brand")
	if err := utils.ValidateVar(brand, "brand"); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return "", false
	}
	return brand, true
}

// GET /brands/:brand/stats
func (h *ReportHandler) GetBrandStats(c *gin.Context) {
	brand, ok := brandParam(c)
	if !ok {
		return
	}
	stats, err := h.productService.BrandStats(c.Request.Context(), brand)
	if err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Brand")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /brands/:brand/products
func (h *ReportHandler) GetBrandProducts(c *gin.Context) {
	brand, ok := brandParam(c)
	if !ok {
		return
	}
	params := utils.GetPaginationParams(c)
	stage := models.PipelineStage(c.Query("stage"))

	products, total, err := h.productService.ListByBrand(c.Request.Context(), brand, stage, params)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			utils.BadRequestResponse(c, "Invalid stage", gin.H{"stage": stage})
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(products, total, params))
}

// GET /brands/:brand/price-comparison
func (h *ReportHandler) GetPriceComparison(c *gin.Context) {
	brand, ok := brandParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	rows, err := h.productService.PriceComparison(c.Request.Context(), brand, limit)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"comparisons": rows,
		"count":       len(rows),
	})
}

// GET /brands/:brand/missing
func (h *ReportHandler) GetMissingProducts(c *gin.Context) {
	brand, ok := brandParam(c)
	if !ok {
		return
	}
	products, err := h.productService.MissingProducts(c.Request.Context(), brand)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// GET /products/:id
func (h *ReportHandler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	ctx := c.Request.Context()
	product, err := h.productService.GetProductFull(ctx, uint(id))
	if err != nil {
		if errors.Is(err, services.ErrRecordNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	history, err := h.productService.PriceHistory(ctx, uint(id))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	images, err := h.productService.ListProductImages(ctx, uint(id))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	errorLog, err := h.productService.ListErrors(ctx, uint(id))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"product":       product,
		"price_history": history,
		"images":        images,
		"errors":        errorLog,
	})
}
