package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-inventory/internal/model"
	"github.com/iliyamo/lab-inventory/internal/repository"
	"github.com/iliyamo/lab-inventory/internal/service"
)

// DeviceHandler serves the device catalog: listing with filters for every
// authenticated user, CRUD for managers. Listing goes through the service so
// each row carries its current open loan.
type DeviceHandler struct {
	Svc     *service.Inventory
	Devices *repository.DeviceRepo
}

func NewDeviceHandler(svc *service.Inventory, devices *repository.DeviceRepo) *DeviceHandler {
	return &DeviceHandler{Svc: svc, Devices: devices}
}

type deviceListResp struct {
	Total int64                  `json:"total"`
	Items []model.DeviceWithLoan `json:"items"`
}

// List returns one page of devices matching the query filters.
func (h *DeviceHandler) List(c echo.Context) error {
	f := model.DeviceFilter{
		Search:   c.QueryParam("search"),
		StatusID: queryUint(c, "status_id"),
		TypeID:   queryUint(c, "type_id"),
		Skip:     queryInt(c, "skip"),
		Limit:    queryInt(c, "limit"),
	}
	total, items, err := h.Svc.ListDevices(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, deviceListResp{Total: total, Items: items})
}

// Get returns one device by id, with its current open loan when one exists.
func (h *DeviceHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	d, err := h.Svc.GetDevice(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

type deviceCreateReq struct {
	InventoryNumber string  `json:"inventory_number"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	Location        *string `json:"location"`
	TypeID          uint64  `json:"type_id"`
	StatusID        uint64  `json:"status_id"`
	SecurityLevel   string  `json:"security_level"`
}

// Create registers a new device. Duplicate inventory numbers yield 409.
func (h *DeviceHandler) Create(c echo.Context) error {
	var req deviceCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.InventoryNumber == "" || req.Name == "" || req.TypeID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "inventory_number, name and type_id required"})
	}
	if req.SecurityLevel != "" && !model.IsSecurityLevel(req.SecurityLevel) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid security_level"})
	}

	d, err := h.Devices.Create(c.Request().Context(), repository.DeviceCreate{
		InventoryNumber: req.InventoryNumber,
		Name:            req.Name,
		Description:     req.Description,
		Location:        req.Location,
		TypeID:          req.TypeID,
		StatusID:        req.StatusID,
		SecurityLevel:   req.SecurityLevel,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

type deviceUpdateReq struct {
	InventoryNumber *string `json:"inventory_number"`
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	Location        *string `json:"location"`
	TypeID          *uint64 `json:"type_id"`
	SecurityLevel   *string `json:"security_level"`
}

// Update applies a partial update. The device status is not updatable here;
// it only moves through loan and return.
func (h *DeviceHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req deviceUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.SecurityLevel != nil && !model.IsSecurityLevel(*req.SecurityLevel) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid security_level"})
	}

	d, err := h.Devices.Update(c.Request().Context(), id, repository.DeviceUpdate{
		InventoryNumber: req.InventoryNumber,
		Name:            req.Name,
		Description:     req.Description,
		Location:        req.Location,
		TypeID:          req.TypeID,
		SecurityLevel:   req.SecurityLevel,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// Delete removes a device; its loan history cascades away with it.
func (h *DeviceHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	if err := h.Devices.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func queryUint(c echo.Context, name string) uint64 {
	n, _ := strconv.ParseUint(c.QueryParam(name), 10, 64)
	return n
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}
