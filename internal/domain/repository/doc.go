// Package repository define las entidades persistidas y los contratos de acceso
// a datos, independientes del motor (MongoDB, PostgreSQL o memoria).
//
//	services / authflow / realtime
//	            │
//	            ▼
//	domain/repository (interfaces)
//	            │
//	   ┌────────┼────────┐
//	   ▼        ▼        ▼
//	 mongo      pg     memory
//
// Convenciones:
//   - TenantID se pasa explícitamente en cada lectura; ninguna operación cruza tenants.
//   - Context siempre es el primer parámetro y cada adapter le aplica su timeout.
//   - Los errores de dominio están en errors.go.
package repository
