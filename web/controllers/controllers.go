package controllers

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"hotspot-billing/mikrotik"
	"hotspot-billing/payment"
	"hotspot-billing/web/db"
	"hotspot-billing/web/email"
)

// Wiring set up once from main.
var (
	store       *db.Store
	provisioner *mikrotik.Provisioner
	payments    *payment.Service
)

func Init(s *db.Store, p *mikrotik.Provisioner, pay *payment.Service) {
	store = s
	provisioner = p
	payments = pay
}

func currentOperator(c *gin.Context) (db.Operator, bool) {
	v, ok := c.Get("operator")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return db.Operator{}, false
	}
	return v.(db.Operator), true
}

func Signup(c *gin.Context) {
	var body struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		Password    string `json:"password"`
		CompanyName string `json:"company_name"`
		Address     string `json:"address"`
	}

	if c.BindJSON(&body) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), 10)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to hash password."})
		return
	}

	company := db.Company{
		CompanyName: body.CompanyName,
		Username:    body.Email,
		Address:     body.Address,
		PhoneNumber: body.Phone,
	}
	if err := db.DB.Create(&company).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create company: " + err.Error()})
		return
	}

	operator := db.Operator{
		Name:        body.Name,
		Email:       body.Email,
		Phone:       body.Phone,
		Password:    string(hash),
		UserType:    "admin",
		CompanyID:   company.ID,
		CompanyName: company.CompanyName,
		Active:      true,
	}
	if err := db.DB.Create(&operator).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create operator: " + err.Error()})
		return
	}

	go func() {
		if err := email.SendWelcomeEmail(operator.Email, operator.Name, company.CompanyName); err != nil {
			log.Println("signup: welcome email:", err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"company_id": company.ID, "operator_id": operator.ID})
}

func Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if c.BindJSON(&body) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	var operator db.Operator
	db.DB.First(&operator, "email = ?", body.Email)
	if operator.ID == 0 || !operator.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.Password), []byte(body.Password)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email or password"})
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": operator.ID,
		"exp": time.Now().Add(time.Hour * 24 * 30).Unix(),
	})
	tokenString, err := token.SignedString([]byte(os.Getenv("SECRET")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": tokenString})
}

func Me(c *gin.Context) {
	operator, ok := currentOperator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           operator.ID,
		"name":         operator.Name,
		"email":        operator.Email,
		"user_type":    operator.UserType,
		"company_id":   operator.CompanyID,
		"company_name": operator.CompanyName,
	})
}
